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
	"gristmigrate/internal/grist"
	"gristmigrate/internal/grist/gristfake"
)

// fixture builds a two-step plan: operators, then solutions that reference
// operators by name.
func fixture() (*gristfake.Document, *gristfake.Document, *etl.Plan) {
	source := gristfake.New()
	source.AddTable("Administrations")
	source.Seed("Administrations",
		domain.Fields{"Nom": domain.Text("DINUM")},
		domain.Fields{"Nom": domain.Text("ANCT")},
	)
	source.AddTable("Produits")
	source.Seed("Produits",
		domain.Fields{"Nom": domain.Text("Mes Aides"), "Operateur": domain.Text("ANCT"), "Prix": domain.Text("Solution gratuite")},
		domain.Fields{"Nom": domain.Text("Démarches"), "Operateur": domain.Text("DINUM"), "Prix": domain.Text("Sur devis")},
	)

	target := gristfake.New()
	target.AddTable("Operateurs")
	target.AddTable("Solutions")

	operateurs := &etl.Step{
		Name:  "operateurs",
		Table: "Operateurs",
		Mode:  etl.SyncReplace,
		Sources: []etl.SourceQuery{{
			Table:       "Administrations",
			Transformer: &etl.RecordTransformer{Name: "operateurs", Rules: []etl.FieldRule{etl.Same("Nom")}},
		}},
	}
	solutions := &etl.Step{
		Name:      "solutions",
		Table:     "Solutions",
		Mode:      etl.SyncReplace,
		DependsOn: []string{"Operateurs"},
		Sources: []etl.SourceQuery{{
			Table: "Produits",
			Transformer: &etl.RecordTransformer{Name: "solutions", Label: "Nom", Rules: []etl.FieldRule{
				etl.Same("Nom"),
				etl.Ref("Operateur", "Operateur", etl.RefSpec{Table: "Operateurs", Column: "Nom"}),
				etl.Derive("Prix", "Prix", etl.PriceCategory),
			}},
		}},
	}
	return source, target, &etl.Plan{Name: "test", Steps: []*etl.Step{operateurs, solutions}}
}

func snapshot(doc *gristfake.Document, table string) []map[string]string {
	var out []map[string]string
	for _, r := range doc.Rows(table) {
		m := map[string]string{}
		for k, v := range r.Fields {
			m[k] = v.String()
		}
		out = append(out, m)
	}
	return out
}

func TestEngine_Run(t *testing.T) {
	source, target, plan := fixture()
	require.NoError(t, plan.Validate())

	e := etl.NewEngine(source, target, zerolog.Nop())
	res, err := e.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 4, res.RowsWritten())

	sols := target.Rows("Solutions")
	require.Len(t, sols, 2)
	assert.Equal(t, "Mes Aides", sols[0].Fields.Get("Nom").String())
	id, _ := sols[0].Fields.Get("Operateur").RefID()
	assert.Equal(t, int64(2), id, "ANCT is the second operator")
	assert.Equal(t, "Gratuit", sols[0].Fields.Get("Prix").String())
	assert.Equal(t, "Payant", sols[1].Fields.Get("Prix").String())
}

func TestEngine_Idempotent(t *testing.T) {
	source, target, plan := fixture()
	ctx := context.Background()

	_, err := etl.NewEngine(source, target, zerolog.Nop()).Run(ctx, plan)
	require.NoError(t, err)
	first := snapshot(target, "Solutions")
	firstOps := snapshot(target, "Operateurs")

	res, err := etl.NewEngine(source, target, zerolog.Nop()).Run(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps[0].RowsDeleted)

	assert.Equal(t, firstOps, snapshot(target, "Operateurs"))
	require.Len(t, target.Rows("Solutions"), 2)
	// Operator ids change on re-run, so compare everything but references.
	second := snapshot(target, "Solutions")
	for i := range first {
		assert.Equal(t, first[i]["Nom"], second[i]["Nom"])
		assert.Equal(t, first[i]["Prix"], second[i]["Prix"])
	}
}

func TestEngine_DependencyOrder(t *testing.T) {
	source, target, plan := fixture()
	reversed := &etl.Plan{Name: "reversed", Steps: []*etl.Step{plan.Steps[1], plan.Steps[0]}}

	assert.Error(t, reversed.Validate())

	res, err := etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), reversed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrNotFound))
	var serr *etl.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "solutions", serr.Step)
	assert.Equal(t, etl.PhaseTransform, serr.Phase)
	assert.Equal(t, "error", res.Status)
	require.Len(t, res.Steps, 1, "run stops at the first failure")
	assert.Empty(t, target.Rows("Operateurs"))

	_, err = etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), plan)
	require.NoError(t, err)
}

func TestEngine_TargetCacheInvalidatedAfterWrite(t *testing.T) {
	source, target, plan := fixture()
	e := etl.NewEngine(source, target, zerolog.Nop())
	ctx := context.Background()

	// Warm the cache with the empty operators table.
	_, err := e.TargetCache().Records(ctx, "Operateurs")
	require.NoError(t, err)

	_, err = e.Run(ctx, plan)
	require.NoError(t, err, "solutions must see operators written earlier in the run")
}

func TestEngine_AppendKeepsRows(t *testing.T) {
	source, target, plan := fixture()
	plan.Steps[0].Mode = etl.SyncAppend
	e := etl.NewEngine(source, target, zerolog.Nop())
	ctx := context.Background()

	_, err := e.RunStep(ctx, plan.Steps[0])
	require.NoError(t, err)
	res, err := e.RunStep(ctx, plan.Steps[0])
	require.NoError(t, err)

	assert.Equal(t, 0, res.RowsDeleted)
	assert.Len(t, target.Rows("Operateurs"), 4)
	assert.Zero(t, target.Calls["DeleteAllRecords"])
}

func TestEngine_Filters(t *testing.T) {
	source, target, plan := fixture()
	step := plan.Steps[0]
	step.Sources[0].Filter = domain.Filter{"Nom": {"DINUM"}}

	res, err := etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsRead)
	assert.Equal(t, 1, res.RowsWritten)

	step.Sources[0].Filter = nil
	step.Sources[0].Where = []etl.RowFilter{etl.WhereNot("Nom", domain.Text("DINUM"))}
	res, err = etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 1, res.RowsWritten)
	assert.Equal(t, "ANCT", target.Rows("Operateurs")[0].Fields.Get("Nom").String())
}

func TestEngine_EmptySourceSkipsWrite(t *testing.T) {
	source := gristfake.New()
	source.AddTable("Empty")
	target := gristfake.New()
	target.AddTable("T")
	step := &etl.Step{Name: "t", Table: "T", Mode: etl.SyncReplace, Sources: []etl.SourceQuery{{
		Table: "Empty", Transformer: &etl.RecordTransformer{Rules: []etl.FieldRule{etl.Same("Nom")}},
	}}}

	res, err := etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	require.NoError(t, err)
	assert.Zero(t, res.RowsWritten)
	assert.Zero(t, target.Calls["CreateRecords"])
}

func TestEngine_WriteFailure(t *testing.T) {
	source, target, plan := fixture()
	target.FailCreate["Operateurs"] = true

	_, err := etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), plan)
	var serr *etl.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, etl.PhaseWrite, serr.Phase)

	var reqErr *grist.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 400, reqErr.Status)
}

func TestEngine_FetchFailure(t *testing.T) {
	source, target, plan := fixture()
	plan.Steps[0].Sources[0].Table = "Missing"

	_, err := etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), plan)
	var serr *etl.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, etl.PhaseFetch, serr.Phase)
}

func TestEngine_ClearFailure(t *testing.T) {
	source, _, plan := fixture()
	_, err := etl.NewEngine(source, gristfake.New(), zerolog.Nop()).Run(context.Background(), plan)
	var serr *etl.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, etl.PhaseClear, serr.Phase)
}

func TestEngine_CleanupRemovesUnusedAttachments(t *testing.T) {
	source := gristfake.New()
	source.AddTable("Produits")
	logo := source.SeedAttachment("logo.png", []byte("png"))
	source.Seed("Produits", domain.Fields{"Nom": domain.Text("A"), "Image": domain.RefList(logo)})

	target := gristfake.New()
	target.AddTable("Solutions",
		domain.Column{ID: "Nom", Type: "Text"},
		domain.Column{ID: "Image", Type: "Attachments"},
	)
	stale := target.SeedAttachment("old.png", []byte("old"))

	step := &etl.Step{Name: "solutions", Table: "Solutions", Mode: etl.SyncReplace, Cleanup: true,
		Sources: []etl.SourceQuery{{Table: "Produits", Transformer: &etl.RecordTransformer{Rules: []etl.FieldRule{
			etl.Same("Nom"), etl.Attachment("Image", "Image"),
		}}}}}

	_, err := etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	require.NoError(t, err)

	_, ok := target.Attachment(stale)
	assert.False(t, ok)
	assert.Equal(t, 1, target.AttachmentCount())
}

func TestEngine_SkipsFormulaColumns(t *testing.T) {
	source := gristfake.New()
	source.AddTable("S")
	source.Seed("S", domain.Fields{"Nom": domain.Text("A"), "Calc": domain.Text("x")})
	target := gristfake.New()
	target.AddTable("T",
		domain.Column{ID: "Nom", Type: "Text"},
		domain.Column{ID: "Calc", Type: "Text", IsFormula: true},
	)
	step := &etl.Step{Name: "t", Table: "T", Mode: etl.SyncReplace, Sources: []etl.SourceQuery{{
		Table: "S", Transformer: &etl.RecordTransformer{Rules: []etl.FieldRule{etl.Same("Nom"), etl.Same("Calc")}},
	}}}

	_, err := etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	require.NoError(t, err)
	rows := target.Rows("T")
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Nom"}, keys(rows[0].Fields))
}

func TestEngine_UnknownColumnFailsWrite(t *testing.T) {
	source := gristfake.New()
	source.AddTable("S")
	source.Seed("S", domain.Fields{"Nom": domain.Text("A"), "Descr": domain.Text("texte")})
	target := gristfake.New()
	target.AddTable("T",
		domain.Column{ID: "Nom", Type: "Text"},
		domain.Column{ID: "Description", Type: "Text"},
	)
	step := &etl.Step{Name: "t", Table: "T", Mode: etl.SyncReplace, Sources: []etl.SourceQuery{{
		Table: "S", Transformer: &etl.RecordTransformer{Rules: []etl.FieldRule{etl.Same("Nom"), etl.Copy("Descriptoin", "Descr")}},
	}}}

	res, err := etl.NewEngine(source, target, zerolog.Nop()).RunStep(context.Background(), step)
	var serr *etl.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, etl.PhaseWrite, serr.Phase)

	var colErr *etl.UnknownColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "Descriptoin", colErr.Column)
	assert.Equal(t, []string{"Nom", "Description"}, colErr.Columns)

	assert.Equal(t, "error", res.Status)
	assert.Empty(t, target.Rows("T"))
	assert.Zero(t, target.Calls["CreateRecords"])
}

func keys(f domain.Fields) []string {
	var out []string
	for k := range f {
		out = append(out, k)
	}
	return out
}

func TestEngine_Preview(t *testing.T) {
	source, target, plan := fixture()
	e := etl.NewEngine(source, target, zerolog.Nop())

	rows, err := e.Preview(context.Background(), plan.Steps[0], 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "DINUM", rows[0].Get("Nom").String())
	assert.Zero(t, target.Calls["CreateRecords"])
	assert.Zero(t, target.Calls["DeleteAllRecords"])
}

func TestEngine_RunSelectedSteps(t *testing.T) {
	source, target, plan := fixture()
	res, err := etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), plan, "operateurs")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Empty(t, target.Rows("Solutions"))

	_, err = etl.NewEngine(source, target, zerolog.Nop()).Run(context.Background(), plan, "nope")
	assert.ErrorContains(t, err, `unknown step "nope"`)
}

func TestPlan_Validate(t *testing.T) {
	_, _, plan := fixture()
	require.NoError(t, plan.Validate())

	bad := &etl.Plan{Name: "bad", Steps: []*etl.Step{
		{Name: "a", Table: "A", Mode: "upsert"},
		{Name: "a", Table: "B", Mode: etl.SyncReplace, DependsOn: []string{"C"},
			Sources: []etl.SourceQuery{{Table: "S"}}},
	}}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"duplicate name", "unknown mode", "no sources", "no transformer", "depends on C"} {
		assert.Contains(t, err.Error(), want)
	}

	bad.External = []string{"C"}
	assert.NotContains(t, bad.Validate().Error(), "depends on C")
}

func TestPlanRegistry(t *testing.T) {
	etl.RegisterPlan(&etl.Plan{Name: "registry-test"})
	p, err := etl.GetPlan("registry-test")
	require.NoError(t, err)
	assert.Equal(t, "registry-test", p.Name)
	assert.Contains(t, etl.ListPlans(), "registry-test")

	_, err = etl.GetPlan("missing")
	assert.Error(t, err)
}
