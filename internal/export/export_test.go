package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	goption "google.golang.org/api/option"

	"lodge/internal/core"
)

func sampleTable() Table {
	return Table{
		Title: "Overdue dues",
		Columns: []Column{
			{Name: "Member", Kind: KindString},
			{Name: "Count", Kind: KindInt},
			{Name: "Total", Kind: KindMoney},
			{Name: "Share", Kind: KindPercent},
			{Name: "Since", Kind: KindDate},
			{Name: "Critical", Kind: KindBool},
		},
		Rows: [][]Cell{
			{String(`Silva, "Zé"`), Int(2), Money(core.Money{Cents: 20050}), Percent(75), Date(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)), Bool(true)},
			{String("line\nbreak"), Int(0), Money(core.Money{}), Percent(0), OptDate(nil), Bool(false)},
		},
	}
}

func TestCellText(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"string", String("abc"), "abc"},
		{"int", Int(-3), "-3"},
		{"money", Money(core.Money{Cents: 123456}), "1234.56"},
		{"negative money", Money(core.Money{Cents: -5}), "-0.05"},
		{"percent", Percent(66.666), "66.7"},
		{"date", Date(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)), "2024-01-02"},
		{"zero date", Date(time.Time{}), ""},
		{"bool", Bool(true), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCSV_QuotesAwkwardValues(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "Member" || records[0][5] != "Critical" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][0] != `Silva, "Zé"` {
		t.Errorf("comma/quote value mangled: %q", records[1][0])
	}
	if records[2][0] != "line\nbreak" {
		t.Errorf("newline value mangled: %q", records[2][0])
	}
	if records[1][2] != "200.50" || records[1][4] != "2024-03-10" {
		t.Errorf("unexpected typed cells: %v", records[1])
	}
	if records[2][4] != "" {
		t.Errorf("nil date should be blank, got %q", records[2][4])
	}
}

func TestWriteXLSX_TypedCells(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleTable()); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "Overdue dues" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}
	header, err := f.GetCellValue("Overdue dues", "A1")
	if err != nil || header != "Member" {
		t.Errorf("A1 = %q, %v", header, err)
	}
	count, _ := f.GetCellValue("Overdue dues", "B2")
	if count != "2" {
		t.Errorf("B2 = %q, want 2", count)
	}
	raw, _ := f.GetCellValue("Overdue dues", "C2", excelize.Options{RawCellValue: true})
	if raw != "200.5" {
		t.Errorf("C2 raw = %q, want 200.5", raw)
	}
	blank, _ := f.GetCellValue("Overdue dues", "E3")
	if blank != "" {
		t.Errorf("E3 should be blank, got %q", blank)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Payments 2024", "Payments 2024"},
		{"a/b:c", "a-b-c"},
		{"", "Sheet1"},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
	}
	for _, tt := range tests {
		if got := SheetName(tt.in); got != tt.want {
			t.Errorf("SheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuilders(t *testing.T) {
	paid := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	member := core.Member{ID: 1, Name: "Ana", Email: "ana@example.com", Degree: core.Master, Active: true}

	att := AttendanceTable([]core.AttendanceSummary{{Member: member, TotalSessions: 4, AttendedSessions: 3, Percentage: 75}})
	if len(att.Rows) != 1 || att.Rows[0][4].Float != 75 || !att.Rows[0][5].Empty {
		t.Errorf("unexpected attendance row: %+v", att.Rows)
	}

	pay := PaymentTable(2024, []core.PaymentRecord{{
		Member:      member,
		Payments:    []core.Dues{{ID: 9, MemberID: 1, Month: 2, Year: 2024, Status: core.DuesPaid, PaidAt: &paid}},
		LastPayment: &paid,
	}})
	if len(pay.Columns) != 15 {
		t.Fatalf("expected 15 columns, got %d", len(pay.Columns))
	}
	if got := pay.Rows[0][2].Text(); got != "paid" {
		t.Errorf("February cell = %q, want paid", got)
	}
	if got := pay.Rows[0][1].Text(); got != "" {
		t.Errorf("January cell = %q, want blank", got)
	}

	overdue := OverdueTable([]core.OverdueGroup{{
		Member: member,
		Months: []core.MonthRef{{Month: 3, Year: 2024}, {Month: 4, Year: 2024}},
		Count:  2, Total: core.Money{Cents: 10000}, Critical: true,
	}})
	if got := overdue.Rows[0][2].Text(); got != "03/2024, 04/2024" {
		t.Errorf("months = %q", got)
	}

	alerts := AlertsTable([]core.AbsenceAlert{{Name: "Ana", DaysSince: -1, Severity: core.SeverityCritical, NeverAttended: true}})
	if !alerts.Rows[0][1].Empty {
		t.Error("never-attended alert should leave days blank")
	}

	bal := BalanceTable(2024, core.YearBalances(2024, nil))
	if len(bal.Rows) != 12 {
		t.Errorf("expected 12 balance rows, got %d", len(bal.Rows))
	}

	members := MembersTable([]core.Member{member})
	if members.Rows[0][6].Text() != "" || members.Rows[0][7].Text() != "true" {
		t.Errorf("unexpected member row: %v", members.Records()[1])
	}
}

func TestNewSheetsExporter_MissingSpreadsheetID(t *testing.T) {
	_, err := NewSheetsExporter(context.Background(), SheetsConfig{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSheetsExporter_MissingCredentials(t *testing.T) {
	_, err := NewSheetsExporter(context.Background(), SheetsConfig{SpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSheetsExporter_NilService(t *testing.T) {
	e := &SheetsExporter{spreadsheetID: "id"}
	if err := e.Export(context.Background(), sampleTable()); err == nil {
		t.Fatal("expected error without a service")
	}
}

func TestSheetsExporter_Export(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Other"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e, err := NewSheetsExporter(context.Background(), SheetsConfig{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewSheetsExporter: %v", err)
	}
	if err := e.Export(context.Background(), sampleTable()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 4 {
		t.Fatalf("expected get, add tab, clear, update; got %v", calls)
	}
	if !strings.HasPrefix(calls[0], "GET ") {
		t.Errorf("first call should read the spreadsheet, got %s", calls[0])
	}
	if !strings.HasSuffix(calls[1], ":batchUpdate") {
		t.Errorf("second call should add the tab, got %s", calls[1])
	}
	if !strings.HasSuffix(calls[2], ":clear") {
		t.Errorf("third call should clear the tab, got %s", calls[2])
	}
	if !strings.HasPrefix(calls[3], "PUT ") {
		t.Errorf("last call should write values, got %s", calls[3])
	}
}

func TestSheetValues_KeepsNumbers(t *testing.T) {
	vals := sheetValues(sampleTable())
	if vals[0][0] != "Member" {
		t.Errorf("header = %v", vals[0])
	}
	if v, ok := vals[1][2].(float64); !ok || v != 200.5 {
		t.Errorf("money = %#v, want 200.5", vals[1][2])
	}
	if vals[2][4] != "" {
		t.Errorf("blank date = %#v", vals[2][4])
	}
}
