package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gristmigrate/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Tagged list encoding
// ─────────────────────────────────────────────────────────────

func TestEncodeList_RoundTrip(t *testing.T) {
	cases := [][]any{
		{float64(1)},
		{float64(3), float64(1), float64(2)},
		{"Collectivités", "Particuliers"},
	}
	for _, in := range cases {
		encoded := domain.EncodeList(in)
		out, ok := domain.DecodeList(encoded)
		require.True(t, ok)
		assert.Equal(t, in, out)
	}
}

func TestEncodeList_EmptyIsNoValue(t *testing.T) {
	assert.Nil(t, domain.EncodeList(nil))
	assert.Nil(t, domain.EncodeList([]any{}))
}

func TestDecodeList_NoValue(t *testing.T) {
	for _, raw := range []any{nil, []any{}, []any{"L"}, "L", float64(4), []any{"E", "TypeError"}} {
		out, ok := domain.DecodeList(raw)
		assert.False(t, ok, "raw=%v", raw)
		assert.Nil(t, out)
	}
}

func TestDecodeList_DoesNotAliasInput(t *testing.T) {
	raw := []any{"L", float64(1), float64(2)}
	out, ok := domain.DecodeList(raw)
	require.True(t, ok)
	out[0] = float64(99)
	assert.Equal(t, float64(1), raw[1])
}

// ─────────────────────────────────────────────────────────────
// Value wire form
// ─────────────────────────────────────────────────────────────

func TestValue_UnmarshalRecord(t *testing.T) {
	payload := `{"id":7,"fields":{
		"Nom":"ProConnect",
		"Visible":true,
		"Note":4.5,
		"Operateur":12,
		"Cibles":["L",3,1],
		"Publics":["L","Agents","Usagers"],
		"Vide":["L"],
		"Erreur":["E","ValueError"],
		"Absent":null
	}}`

	var rec domain.Record
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	assert.Equal(t, int64(7), rec.ID)
	assert.True(t, rec.Fields.Get("Nom").Equal(domain.Text("ProConnect")))
	assert.True(t, rec.Fields.Get("Visible").Equal(domain.Bool(true)))
	assert.True(t, rec.Fields.Get("Note").Equal(domain.Number(4.5)))
	assert.Equal(t, []int64{3, 1}, rec.Fields.Get("Cibles").IDs())
	assert.True(t, rec.Fields.Get("Publics").Equal(domain.TextList("Agents", "Usagers")))
	assert.True(t, rec.Fields.Get("Vide").IsNull())
	assert.True(t, rec.Fields.Get("Erreur").IsNull())
	assert.True(t, rec.Fields.Get("Absent").IsNull())
	assert.True(t, rec.Fields.Get("Missing").IsNull())

	id, ok := rec.Fields.Get("Operateur").RefID()
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
}

func TestValue_MarshalFields(t *testing.T) {
	fields := domain.Fields{
		"Nom":       domain.Text("ProConnect"),
		"Operateur": domain.Ref(4),
		"Cibles":    domain.RefList(2, 5),
		"Image":     domain.RefList(),
		"Prix":      domain.Null(),
	}
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Nom":"ProConnect","Operateur":4,"Cibles":["L",2,5],"Image":null,"Prix":null}`, string(data))
}

func TestValue_RefIDRejectsNonIntegral(t *testing.T) {
	_, ok := domain.Number(2.5).RefID()
	assert.False(t, ok)
	_, ok = domain.Text("2").RefID()
	assert.False(t, ok)
}

func TestValue_RefIDRejectsOutOfRange(t *testing.T) {
	_, ok := domain.Number(math.Pow(2, 63)).RefID()
	assert.False(t, ok)
	_, ok = domain.Number(1e300).RefID()
	assert.False(t, ok)

	id, ok := domain.Number(1 << 52).RefID()
	assert.True(t, ok)
	assert.Equal(t, int64(1<<52), id)
}

func TestValue_Items(t *testing.T) {
	assert.Empty(t, domain.Null().Items())
	assert.Len(t, domain.Text("a").Items(), 1)
	items := domain.RefList(1, 2).Items()
	require.Len(t, items, 2)
	assert.True(t, items[1].Equal(domain.Ref(2)))
}

func TestColumn_ReferencedTable(t *testing.T) {
	assert.Equal(t, "Operateurs", domain.Column{Type: "Ref:Operateurs"}.ReferencedTable())
	assert.Equal(t, "Solutions", domain.Column{Type: "RefList:Solutions"}.ReferencedTable())
	assert.Equal(t, "", domain.Column{Type: "Text"}.ReferencedTable())
	assert.Equal(t, "", domain.Column{Type: "DateTime:Europe/Paris"}.ReferencedTable())
}
