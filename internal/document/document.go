// Package document renders installment payment schedules as PDF.
package document

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/iwvelando/tamerun-invest/pkg/datetime"
	"github.com/iwvelando/tamerun-invest/pkg/format"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "application/pdf"

const (
	fontFamily = "schedule"
	coreFont   = "Helvetica"

	marginMM     = 20.0
	footerMM     = 25.0
	lineHeightMM = 5.0
	cellPadMM    = 1.5

	footnote = "*Предложение действительно в течение 30 дней с даты расчета и не является публичной офертой."
)

var columns = []struct {
	title string
	width float64
	align string
}{
	{"№", 14, "C"},
	{"Дата внесения платежа", 44, "C"},
	{"Сумма платежа", 42, "R"},
	{"Пояснение", 70, "L"},
}

type rgb struct{ r, g, b int }

var (
	headColor    = rgb{210, 192, 177}
	onetimeColor = rgb{8, 139, 149}
	white        = rgb{255, 255, 255}
)

// Input is the content of a schedule document.
type Input struct {
	Schedule        []installment.ScheduleEntry
	PropertyPrice   float64
	Period          int
	ApartmentNumber int
	GeneratedAt     time.Time
}

// Options selects the font. FontFile is a UTF-8 TrueType font; without one
// the core Helvetica font is used and characters outside Windows-1252 are
// replaced.
type Options struct {
	FontFile string
}

// Title returns the document heading.
func Title(apartmentNumber, period int) string {
	return fmt.Sprintf("Расчет графика платежей за Апартаменты № %d Tamerun Grand Mirmax по рассрочке на %d месяцев*", apartmentNumber, period)
}

// FileName returns the display name of the document.
func FileName(apartmentNumber, period int) string {
	return fmt.Sprintf("График платежей № %d на %d %s.pdf", apartmentNumber, period, format.MonthWord(period))
}

// FallbackFileName returns an ASCII name for clients that ignore filename*.
func FallbackFileName(apartmentNumber int) string {
	return "payment_schedule_" + strconv.Itoa(apartmentNumber) + ".pdf"
}

// Render writes the schedule document to w.
func Render(w io.Writer, in Input, opts Options) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(Title(in.ApartmentNumber, in.Period), true)

	text := func(s string) string { return s }
	family := coreFont
	if opts.FontFile != "" {
		pdf.AddUTF8Font(fontFamily, "", opts.FontFile)
		family = fontFamily
	} else {
		text = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	_, pageHeight := pdf.GetPageSize()
	contentWidth := 0.0
	for _, col := range columns {
		contentWidth += col.width
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-footerMM + 5)
		pdf.SetFont(family, "", 8)
		pdf.MultiCell(contentWidth, 4, text(footnote), "", "L", false)
	})

	pdf.AddPage()

	pdf.SetFont(family, "", 14)
	pdf.MultiCell(contentWidth, 7, text(Title(in.ApartmentNumber, in.Period)), "", "C", false)
	pdf.Ln(4)

	generated := in.GeneratedAt.In(datetime.Moscow).Format("02.01.2006 15:04:05")
	pdf.SetFont(family, "", 10)
	pdf.CellFormat(contentWidth, lineHeightMM, text("Дата расчета: "+generated), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentWidth, lineHeightMM, text("Стоимость квартиры: "+rubles(in.PropertyPrice, ",")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	header := func() {
		pdf.SetFont(family, "", 9)
		fill(pdf, headColor)
		for _, col := range columns {
			pdf.CellFormat(col.width, 2*lineHeightMM, text(col.title), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	header()

	noteWidth := columns[3].width - 2*cellPadMM
	total := 0.0
	for _, entry := range in.Schedule {
		pdf.SetFont(family, "", 9)
		lines := pdf.SplitText(text(entry.Note), noteWidth)
		if len(lines) == 0 {
			lines = []string{""}
		}
		rowHeight := float64(len(lines))*lineHeightMM + 2*cellPadMM

		if pdf.GetY()+rowHeight > pageHeight-footerMM {
			pdf.AddPage()
			header()
			pdf.SetFont(family, "", 9)
		}

		color := white
		if entry.OnetimePayment {
			color = onetimeColor
		}
		fill(pdf, color)

		x, y := pdf.GetXY()
		cells := []string{
			strconv.Itoa(entry.Month),
			text(entry.Date),
			text(rubles(entry.Amount, " ")),
		}
		for i, value := range cells {
			pdf.CellFormat(columns[i].width, rowHeight, value, "1", 0, columns[i].align, true, 0, "")
		}
		noteX := x + columns[0].width + columns[1].width + columns[2].width
		pdf.Rect(noteX, y, columns[3].width, rowHeight, "FD")
		for i, line := range lines {
			pdf.SetXY(noteX+cellPadMM, y+cellPadMM+float64(i)*lineHeightMM)
			pdf.CellFormat(noteWidth, lineHeightMM, line, "", 0, "L", false, 0, "")
		}
		pdf.SetXY(x, y+rowHeight)
		total += entry.Amount
	}

	if pdf.GetY()+2*lineHeightMM > pageHeight-footerMM {
		pdf.AddPage()
	}
	fill(pdf, headColor)
	pdf.SetFont(family, "", 10)
	pdf.CellFormat(columns[0].width+columns[1].width, 2*lineHeightMM, text("Итого выплачено:"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(columns[2].width, 2*lineHeightMM, text(rubles(total, ",")), "1", 0, "R", true, 0, "")
	pdf.CellFormat(columns[3].width, 2*lineHeightMM, "", "1", 1, "L", true, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render payment schedule: %w", err)
	}
	return nil
}

func rubles(amount float64, separator string) string {
	return format.Grouped(amount, separator) + " руб."
}

func fill(pdf *fpdf.Fpdf, color rgb) {
	pdf.SetFillColor(color.r, color.g, color.b)
}
