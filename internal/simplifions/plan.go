package simplifions

import (
	"gristmigrate/internal/domain"
	"gristmigrate/internal/etl"
)

// PlanName is the name the plan registers under.
const PlanName = "simplifions"

func init() {
	etl.RegisterPlan(NewPlan())
}

// NewPlan returns the migration steps in dependency order: the API catalog
// and operators first, then solutions, use cases, and everything linking
// them.
func NewPlan() *etl.Plan {
	return &etl.Plan{
		Name:        PlanName,
		Description: "Simplifions catalog: editorial document to public document",
		External:    []string{TableBudgets, TableTypes, TableUsagers, TableCategories},
		Steps: []*etl.Step{
			{
				Name:  "apis_et_donnees",
				Table: TableApis,
				Mode:  etl.SyncReplace,
				Sources: []etl.SourceQuery{
					{Table: SrcApis, Where: []etl.RowFilter{etl.WhereNotEmpty(colNom)}, Transformer: apisTransformer()},
				},
			},
			{
				Name:      "operateurs",
				Table:     TableOperateurs,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableCategories},
				Sources: []etl.SourceQuery{
					{
						Table:       SrcAdministrations,
						Where:       []etl.RowFilter{etl.WhereNot(colNom, domain.Text(sentinelOperateur))},
						Transformer: operateursPublicsTransformer(),
					},
					{Table: SrcFournisseurs, Transformer: operateursPrivesTransformer()},
				},
			},
			{
				Name:      "solutions",
				Table:     TableSolutions,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableOperateurs, TableBudgets, TableTypes, TableUsagers},
				Cleanup:   true,
				Sources: []etl.SourceQuery{
					{Table: SrcSolutionsPubliques, Transformer: solutionsPubliquesTransformer()},
					{Table: SrcSolutionsPrivees, Transformer: solutionsPriveesTransformer()},
					{Table: SrcProduits, Where: []etl.RowFilter{etl.WhereEmpty(flagFiche)}, Transformer: orphelinesPubliquesTransformer()},
					{Table: SrcSolutionsEditeurs, Where: []etl.RowFilter{etl.WhereEmpty(flagFiche)}, Transformer: orphelinesPriveesTransformer()},
				},
			},
			{
				Name:      "cas_d_usages",
				Table:     TableCasUsages,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableTypes, TableUsagers},
				Sources: []etl.SourceQuery{
					{Table: SrcCasUsages, Transformer: casUsagesTransformer()},
				},
			},
			{
				Name:      "recommandations",
				Table:     TableRecommandations,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableCasUsages, TableSolutions, TableApis},
				Sources: []etl.SourceQuery{
					{Table: SrcRecoSolutions, Transformer: recoSolutionsTransformer()},
					{Table: SrcRecoApis, Transformer: recoApisTransformer()},
				},
			},
			{
				Name:      "apis_et_donnees_fournies",
				Table:     TableApisFournies,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableSolutions, TableApis},
				Sources: []etl.SourceQuery{
					{Table: SrcFourniesPubliques, Transformer: apisFourniesTransformer("apis_fournies_publiques")},
					{Table: SrcFourniesPrivees, Transformer: apisFourniesTransformer("apis_fournies_privees")},
				},
			},
			{
				Name:      "apis_et_donnees_integrees",
				Table:     TableApisIntegrees,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableSolutions, TableApis, TableCasUsages},
				Sources: []etl.SourceQuery{
					{Table: SrcIntegreesPubliques, Transformer: apisIntegreesTransformer("apis_integrees_publiques")},
					{Table: SrcIntegreesPrivees, Transformer: apisIntegreesTransformer("apis_integrees_privees")},
				},
			},
			{
				// Usefulness notes accumulate across runs.
				Name:      "apis_et_donnees_utiles",
				Table:     TableApisUtiles,
				Mode:      etl.SyncAppend,
				DependsOn: []string{TableCasUsages, TableApis},
				Sources: []etl.SourceQuery{
					{Table: SrcRecoApis, Where: []etl.RowFilter{etl.WhereNotEmpty("Utilite")}, Transformer: apisUtilesTransformer()},
				},
			},
			{
				Name:      "contacts",
				Table:     TableContacts,
				Mode:      etl.SyncReplace,
				DependsOn: []string{TableOperateurs, TableSolutions},
				Sources: []etl.SourceQuery{
					{Table: SrcContacts, Where: []etl.RowFilter{etl.WhereNotEmpty("Email")}, Transformer: contactsTransformer()},
				},
			},
		},
	}
}
