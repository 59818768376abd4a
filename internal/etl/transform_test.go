package etl_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gristmigrate/internal/domain"
	"gristmigrate/internal/etl"
	"gristmigrate/internal/grist/gristfake"
)

func newEnv(source, target *gristfake.Document) *etl.Env {
	return &etl.Env{
		Source:      etl.NewTableCache(source),
		Target:      etl.NewResolver(etl.NewTableCache(target), zerolog.Nop()),
		SourceFiles: source,
		TargetFiles: target,
		Log:         zerolog.Nop(),
	}
}

func TestPriceCategory(t *testing.T) {
	cases := []struct {
		in   domain.Value
		want domain.Value
	}{
		{domain.Text("Solution gratuite"), domain.Text("Gratuit")},
		{domain.Text("Sur devis"), domain.Text("Payant")},
		{domain.Text(""), domain.Null()},
		{domain.Null(), domain.Null()},
	}
	for _, c := range cases {
		assert.True(t, c.want.Equal(etl.PriceCategory(c.in)), "PriceCategory(%s)", c.in)
	}
}

func TestRecordTransformer_ScalarRules(t *testing.T) {
	tr := &etl.RecordTransformer{
		Name: "solutions",
		Rules: []etl.FieldRule{
			etl.Copy("Nom", "Ref_Nom_de_la_solution"),
			etl.Same("Site_internet"),
			etl.Derive("Prix", "Prix_", etl.PriceCategory),
			etl.Const("Visible_sur_simplifions", domain.Bool(true)),
			etl.Clear("Description_courte"),
		},
	}
	src := domain.Record{ID: 7, Fields: domain.Fields{
		"Ref_Nom_de_la_solution": domain.Text("Mes Aides"),
		"Site_internet":          domain.Text("https://example.org"),
		"Prix_":                  domain.Text("Solution gratuite"),
		"Description_courte":     domain.Text("kept out"),
	}}

	out, err := tr.Transform(context.Background(), &etl.Env{Log: zerolog.Nop()}, src)
	require.NoError(t, err)

	assert.Equal(t, "Mes Aides", out.Get("Nom").String())
	assert.Equal(t, "https://example.org", out.Get("Site_internet").String())
	assert.Equal(t, "Gratuit", out.Get("Prix").String())
	assert.True(t, out.Get("Visible_sur_simplifions").Equal(domain.Bool(true)))
	v, ok := out["Description_courte"]
	assert.True(t, ok, "cleared fields are written explicitly")
	assert.True(t, v.IsNull())
	assert.Equal(t, []string{"Nom", "Site_internet", "Prix", "Visible_sur_simplifions", "Description_courte"}, tr.Fields())
}

func TestRefList_ResolvesNamesInOrder(t *testing.T) {
	target := gristfake.New()
	target.AddTable("Operateurs")
	target.Seed("Operateurs",
		domain.Fields{"Nom": domain.Text("DINUM")},
		domain.Fields{"Nom": domain.Text("DGFiP")},
	)
	env := newEnv(gristfake.New(), target)

	rule := etl.RefList("Operateur", "Operateurs", etl.RefSpec{Table: "Operateurs", Column: "Nom"})
	src := domain.Record{ID: 1, Fields: domain.Fields{"Operateurs": domain.TextList("DGFiP", "DINUM")}}

	v, err := rule.Apply(context.Background(), env, src)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, v.IDs())
	assert.Equal(t, []any{"L", int64(2), int64(1)}, v.ToWire())
}

func TestRef_ViaSourceLookup(t *testing.T) {
	source := gristfake.New()
	source.AddTable("Administrations")
	srcIDs := source.Seed("Administrations",
		domain.Fields{"Nom_court": domain.Text("ANCT")},
		domain.Fields{"Nom_court": domain.Text("DINUM")},
	)
	target := gristfake.New()
	target.AddTable("Operateurs")
	target.Seed("Operateurs", domain.Fields{"Nom": domain.Text("DINUM")})
	env := newEnv(source, target)

	rule := etl.Ref("Operateur", "Administration", etl.RefSpec{
		Table: "Operateurs", Column: "Nom",
		Via: &etl.Lookup{Table: "Administrations", Column: "Nom_court"},
	})
	src := domain.Record{ID: 1, Fields: domain.Fields{"Administration": domain.Number(float64(srcIDs[1]))}}

	v, err := rule.Apply(context.Background(), env, src)
	require.NoError(t, err)
	id, ok := v.RefID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestRef_EmptySourceIsNull(t *testing.T) {
	env := newEnv(gristfake.New(), gristfake.New())
	rule := etl.Ref("Operateur", "Administration", etl.RefSpec{Table: "Operateurs", Column: "Nom"})

	for _, v := range []domain.Value{domain.Null(), domain.Text(""), domain.Number(0)} {
		out, err := rule.Apply(context.Background(), env, domain.Record{Fields: domain.Fields{"Administration": v}})
		require.NoError(t, err)
		assert.True(t, out.IsNull())
	}
}

func TestRef_RequiredMissFails(t *testing.T) {
	target := gristfake.New()
	target.AddTable("Operateurs")
	env := newEnv(gristfake.New(), target)

	tr := &etl.RecordTransformer{
		Name:  "solutions",
		Label: "Nom",
		Rules: []etl.FieldRule{etl.Ref("Operateur", "Operateur", etl.RefSpec{Table: "Operateurs", Column: "Nom"})},
	}
	_, err := tr.Transform(context.Background(), env, domain.Record{ID: 3, Fields: domain.Fields{
		"Nom":       domain.Text("Mes Aides"),
		"Operateur": domain.Text("Inconnu"),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrNotFound))
	assert.Contains(t, err.Error(), "record 3 (Mes Aides)")
	assert.Contains(t, err.Error(), "field Operateur")
}

func TestRef_OptionalMissIsNull(t *testing.T) {
	target := gristfake.New()
	target.AddTable("Operateurs")
	target.Seed("Operateurs", domain.Fields{"Nom": domain.Text("DINUM")})
	env := newEnv(gristfake.New(), target)

	rule := etl.RefList("Operateur", "Operateurs", etl.RefSpec{Table: "Operateurs", Column: "Nom", Optional: true})
	v, err := rule.Apply(context.Background(), env, domain.Record{Fields: domain.Fields{
		"Operateurs": domain.TextList("Inconnu", "DINUM"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, v.IDs())
}

func TestRef_IDWithoutLookupFails(t *testing.T) {
	env := newEnv(gristfake.New(), gristfake.New())
	rule := etl.Ref("Operateur", "Operateur", etl.RefSpec{Table: "Operateurs", Column: "Nom"})
	_, err := rule.Apply(context.Background(), env, domain.Record{Fields: domain.Fields{"Operateur": domain.Number(4)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lookup table")
}

func TestAttachment_CopiesFirstFile(t *testing.T) {
	source := gristfake.New()
	first := source.SeedAttachment("logo.png", []byte("png"))
	second := source.SeedAttachment("other.png", []byte("other"))
	target := gristfake.New()
	env := newEnv(source, target)

	rule := etl.Attachment("Image", "Image")
	v, err := rule.Apply(context.Background(), env, domain.Record{Fields: domain.Fields{
		"Image": domain.RefList(first, second),
	}})
	require.NoError(t, err)

	ids := v.IDs()
	require.Len(t, ids, 1)
	att, ok := target.Attachment(ids[0])
	require.True(t, ok)
	assert.Equal(t, "logo.png", att.FileName)
	assert.Equal(t, []byte("png"), att.Data)
	assert.Equal(t, 1, target.AttachmentCount())
}

func TestAttachment_NoneIsNull(t *testing.T) {
	env := newEnv(gristfake.New(), gristfake.New())
	v, err := etl.Attachment("Image", "Image").Apply(context.Background(), env, domain.Record{Fields: domain.Fields{}})
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestRowFilter(t *testing.T) {
	rec := domain.Record{Fields: domain.Fields{
		"Nom":        domain.Text("Mes Aides"),
		"Page":       domain.Bool(false),
		"Visible":    domain.Bool(true),
		"Categories": domain.TextList("A"),
	}}

	assert.True(t, etl.Where("Nom", domain.Text("Mes Aides")).Keep(rec))
	assert.False(t, etl.WhereNot("Nom", domain.Text("Mes Aides")).Keep(rec))
	assert.True(t, etl.WhereEmpty("Page").Keep(rec))
	assert.True(t, etl.WhereEmpty("Absent").Keep(rec))
	assert.False(t, etl.WhereEmpty("Visible").Keep(rec))
	assert.True(t, etl.WhereNotEmpty("Categories").Keep(rec))

	q := etl.SourceQuery{Where: []etl.RowFilter{etl.WhereNotEmpty("Nom"), etl.WhereEmpty("Page")}}
	assert.True(t, q.Keep(rec))
	q.Where = append(q.Where, etl.WhereNot("Nom", domain.Text("Mes Aides")))
	assert.False(t, q.Keep(rec))
}
