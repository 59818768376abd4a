// Package simplifions holds the field maps and step plan that move the
// Simplifions catalog from the editorial document into the public one.
package simplifions

// Target tables written by the plan.
const (
	TableApis            = "Apis_et_donnees"
	TableOperateurs      = "Operateurs"
	TableSolutions       = "Solutions"
	TableCasUsages       = "Cas_d_usages"
	TableRecommandations = "Recommandations"
	TableApisFournies    = "Apis_et_donnees_fournies"
	TableApisIntegrees   = "Apis_et_donnees_integrees"
	TableApisUtiles      = "Apis_et_donnees_utiles"
	TableContacts        = "Contacts"
)

// Target lookup tables. They are maintained by hand in the target document
// and only read by the migration.
const (
	TableBudgets    = "Budgets_de_mise_en_oeuvre"
	TableTypes      = "Types_de_simplification"
	TableUsagers    = "Usagers"
	TableCategories = "Categories_de_fournisseurs"
)

// Source tables.
const (
	SrcAdministrations    = "Administrations"
	SrcFournisseurs       = "Fournisseurs_de_services"
	SrcProduits           = "Produits"
	SrcSolutionsEditeurs  = "Solutions_editeurs"
	SrcApis               = "SIMPLIFIONS_API_et_donnees"
	SrcSolutionsPubliques = "SIMPLIFIONS_produitspublics"
	SrcSolutionsPrivees   = "SIMPLIFIONS_solutions_editeurs"
	SrcCasUsages          = "SIMPLIFIONS_cas_usages"
	SrcRecoSolutions      = "SIMPLIFIONS_reco_solutions_cas_usages"
	SrcRecoApis           = "SIMPLIFIONS_description_apis_cas_usages"
	SrcFourniesPubliques  = "SIMPLIFIONS_apis_fournies_produitspublics"
	SrcFourniesPrivees    = "SIMPLIFIONS_apis_fournies_solutions_editeurs"
	SrcIntegreesPubliques = "SIMPLIFIONS_apis_integrees_produitspublics"
	SrcIntegreesPrivees   = "SIMPLIFIONS_apis_integrees_solutions_editeurs"
	SrcContacts           = "SIMPLIFIONS_contacts"
)

// Columns used to match names across documents.
const (
	colNom   = "Nom"
	colLabel = "Label"
	colTitre = "Titre"
)

// Source flags.
const (
	// flagFiche is set on catalog rows that have an editorial page.
	flagFiche         = "A_une_fiche_Simplifions"
	// sentinelOperateur is a placeholder administration that is never migrated.
	sentinelOperateur = "Non renseigné"
)
