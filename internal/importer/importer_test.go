// internal/importer/importer_test.go
package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExportBasic(t *testing.T) {
	csv := strings.Join([]string{
		"Cod,Denumire,Stoc,Pret",
		"SKU-1,Surub M8,120,0.45",
		"SKU-2,Cablu 2.5mm,8.500,12.30",
	}, "\n")

	snapshots, names, rows, err := readExport(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	require.Len(t, snapshots, 2)
	require.Len(t, names, 2)

	assert.Equal(t, "SKU-1", snapshots[0].ReferenceProductID)
	assert.Equal(t, 120.0, snapshots[0].Quantity)
	require.NotNil(t, snapshots[0].SellPrice)
	assert.Equal(t, 0.45, *snapshots[0].SellPrice)
	assert.Equal(t, "Surub M8", names[0].Name)
}

func TestReadExportHeaderAliases(t *testing.T) {
	csv := strings.Join([]string{
		"SKU,Product Name,Quantity,Sell Price",
		"SKU-9,Widget,3,1.50",
	}, "\n")

	snapshots, _, _, err := readExport(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 3.0, snapshots[0].Quantity)
}

func TestReadExportSkipsRowsWithoutSku(t *testing.T) {
	csv := strings.Join([]string{
		"cod,denumire,stoc,pret",
		",Orphan,5,1",
		"SKU-1,Named,2,1",
	}, "\n")

	snapshots, _, rows, err := readExport(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "skipped rows still count as read")
	require.Len(t, snapshots, 1)
	assert.Equal(t, "SKU-1", snapshots[0].ReferenceProductID)
}

func TestReadExportMalformedNumbers(t *testing.T) {
	csv := strings.Join([]string{
		"cod,denumire,stoc,pret",
		"SKU-1,Broken qty,n/a,2.50",
		"SKU-2,Broken price,4,abc",
		"SKU-3,Empty price,4,",
	}, "\n")

	snapshots, _, _, err := readExport(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, snapshots, 3)

	assert.Zero(t, snapshots[0].Quantity, "unreadable quantity degrades to zero")
	require.NotNil(t, snapshots[0].SellPrice)

	assert.Nil(t, snapshots[1].SellPrice, "unreadable price stays missing")
	assert.Nil(t, snapshots[2].SellPrice)
	assert.Equal(t, 4.0, snapshots[1].Quantity)
}

func TestReadExportMissingColumns(t *testing.T) {
	csv := "denumire,pret\nWidget,1.50\n"
	_, _, _, err := readExport(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestReadExportRaggedRows(t *testing.T) {
	csv := strings.Join([]string{
		"cod,denumire,stoc,pret",
		"SKU-1,Short row,7",
	}, "\n")

	snapshots, _, _, err := readExport(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 7.0, snapshots[0].Quantity)
	assert.Nil(t, snapshots[0].SellPrice)
}

func TestParseNumericFormats(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234.56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"1.234,56", 1234.56, true},
		{"12,5", 12.5, true},
		{"-3.25", -3.25, true},
		{" 42 ", 42, true},
		{"", 0, false},
		{"n/a", 0, false},
	}

	for _, tc := range cases {
		got, ok := parseNumeric(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestNormalizeColumnName(t *testing.T) {
	assert.Equal(t, "pretvanzare", normalizeColumnName(" Pret Vanzare "))
	assert.Equal(t, "pretvanzare", normalizeColumnName("pret_vanzare"))
	assert.Equal(t, "stoc", normalizeColumnName("STOC"))
}
