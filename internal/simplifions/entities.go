package simplifions

import (
	"gristmigrate/internal/domain"
	"gristmigrate/internal/etl"
)

// ── Reference targets ──────────────────────────────────────

var (
	refOperateur   = etl.RefSpec{Table: TableOperateurs, Column: colNom}
	refSolution    = etl.RefSpec{Table: TableSolutions, Column: colNom}
	refApi         = etl.RefSpec{Table: TableApis, Column: colNom}
	refCasUsage    = etl.RefSpec{Table: TableCasUsages, Column: colTitre}
	refBudget      = etl.RefSpec{Table: TableBudgets, Column: colLabel}
	refType        = etl.RefSpec{Table: TableTypes, Column: colLabel}
	refUsager      = etl.RefSpec{Table: TableUsagers, Column: colLabel}
	refCategorie   = etl.RefSpec{Table: TableCategories, Column: colLabel, Optional: true}
	viaProduit     = &etl.Lookup{Table: SrcProduits, Column: colNom}
	viaEditeur     = &etl.Lookup{Table: SrcSolutionsEditeurs, Column: colNom}
	viaAdmin       = &etl.Lookup{Table: SrcAdministrations, Column: colNom}
	viaFournisseur = &etl.Lookup{Table: SrcFournisseurs, Column: colNom}
)

func via(spec etl.RefSpec, l *etl.Lookup) etl.RefSpec {
	spec.Via = l
	return spec
}

func optional(spec etl.RefSpec) etl.RefSpec {
	spec.Optional = true
	return spec
}

// ── Catalog ────────────────────────────────────────────────

func apisTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "apis_et_donnees",
		Label: colNom,
		Rules: []etl.FieldRule{
			etl.Same("Nom"),
			etl.Same("Description"),
			etl.Copy("Type", "Type_de_ressource"),
			etl.Copy("Lien", "URL"),
			etl.Copy("Producteur", "Producteur"),
			etl.Copy("Visible_sur_simplifions", "Publie"),
		},
	}
}

// ── Operators ──────────────────────────────────────────────

func operateursPublicsTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "operateurs_publics",
		Label: colNom,
		Rules: []etl.FieldRule{
			etl.Same("Nom"),
			etl.Copy("Nom_court", "Sigle"),
			etl.Copy("Site_internet", "Site_web"),
			etl.Const("Type_d_operateur", domain.Text("Public")),
		},
	}
}

func operateursPrivesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "operateurs_prives",
		Label: colNom,
		Rules: []etl.FieldRule{
			etl.Same("Nom"),
			etl.Clear("Nom_court"),
			etl.Copy("Site_internet", "Site_web"),
			etl.Const("Type_d_operateur", domain.Text("Privé")),
			etl.RefList("Categories", "Categories_de_fournisseur", refCategorie),
		},
	}
}

// ── Solutions ──────────────────────────────────────────────
// Editorial rows carry the full field set. Catalog rows without an editorial
// page become orphans: same name and operator, hidden, no editorial fields.

func editorialRules(nameVia, operatorVia *etl.Lookup) []etl.FieldRule {
	return []etl.FieldRule{
		etl.Copy("Visible_sur_simplifions", "Visible_sur_simplifions"),
		etl.Same("Description_courte"),
		etl.Same("Description_longue"),
		etl.Same("Site_internet"),
		etl.Follow("Nom", "Ref_Nom_de_la_solution", *nameVia),
		etl.RefList("Operateur", "Operateur", via(refOperateur, operatorVia)),
		etl.Derive("Prix", "Prix_", etl.PriceCategory),
		etl.RefList("Budget_requis", "Budget_requis", refBudget),
		etl.RefList("Types_de_simplification", "Types_de_simplification", refType),
		etl.RefList("A_destination_de", "A_destination_de", refUsager),
		etl.Same("Pour_simplifier_les_demarches_de"),
		etl.Same("Cette_solution_permet"),
		etl.Same("Cette_solution_ne_permet_pas"),
		etl.Attachment("Image", "Image"),
		etl.Same("Legende_de_l_image"),
	}
}

func solutionsPubliquesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "solutions_publiques",
		Label: "Ref_Nom_de_la_solution",
		Rules: editorialRules(viaProduit, viaAdmin),
	}
}

func solutionsPriveesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "solutions_privees",
		Label: "Ref_Nom_de_la_solution",
		Rules: editorialRules(viaEditeur, viaFournisseur),
	}
}

func orphanRules(operatorColumn string, operatorVia *etl.Lookup) []etl.FieldRule {
	return []etl.FieldRule{
		etl.Const("Visible_sur_simplifions", domain.Bool(false)),
		etl.Same("Nom"),
		etl.RefList("Operateur", operatorColumn, optional(via(refOperateur, operatorVia))),
		etl.Copy("Site_internet", "URL"),
		etl.Clear("Description_courte"),
		etl.Clear("Description_longue"),
		etl.Clear("Prix"),
		etl.Clear("Image"),
	}
}

func orphelinesPubliquesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "solutions_orphelines_publiques",
		Label: colNom,
		Rules: orphanRules("Operateur", viaAdmin),
	}
}

func orphelinesPriveesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "solutions_orphelines_privees",
		Label: colNom,
		Rules: orphanRules("Editeur", viaFournisseur),
	}
}

// ── Use cases ──────────────────────────────────────────────

func casUsagesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "cas_d_usages",
		Label: colTitre,
		Rules: []etl.FieldRule{
			etl.Same("Titre"),
			etl.Same("Slug"),
			etl.Same("Description"),
			etl.Same("Contexte"),
			etl.Copy("Visible_sur_simplifions", "Visible_sur_simplifions"),
			etl.RefList("A_destination_de", "A_destination_de", refUsager),
			etl.RefList("Types_de_simplification", "Types_de_simplification", refType),
			etl.Attachment("Image", "Image"),
		},
	}
}

// ── Recommendations ────────────────────────────────────────

func recoSolutionsTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "recommandations_solutions",
		Label: "Solution",
		Rules: []etl.FieldRule{
			etl.Ref("Cas_d_usage", "Cas_d_usage", refCasUsage),
			etl.Ref("Solution", "Solution", refSolution),
			etl.Clear("Api_ou_donnee"),
			etl.Const("Type_de_recommandation", domain.Text("Solution")),
			etl.Same("Description"),
			etl.Same("Ce_que_permet_la_solution"),
			etl.Copy("Visible_sur_simplifions", "Visible_sur_simplifions"),
		},
	}
}

func recoApisTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "recommandations_apis",
		Label: "Api_ou_donnee",
		Rules: []etl.FieldRule{
			etl.Ref("Cas_d_usage", "Cas_d_usage", refCasUsage),
			etl.Clear("Solution"),
			etl.Ref("Api_ou_donnee", "Api_ou_donnee", refApi),
			etl.Const("Type_de_recommandation", domain.Text("API ou donnée")),
			etl.Same("Description"),
			etl.Clear("Ce_que_permet_la_solution"),
			etl.Copy("Visible_sur_simplifions", "Visible_sur_simplifions"),
		},
	}
}

// ── API and dataset relations ──────────────────────────────

func apisFourniesTransformer(name string) *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  name,
		Label: "Solution",
		Rules: []etl.FieldRule{
			etl.Ref("Solution", "Solution", refSolution),
			etl.Ref("Api_ou_donnee", "Api_ou_donnee", refApi),
			etl.Same("Description"),
		},
	}
}

func apisIntegreesTransformer(name string) *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  name,
		Label: "Solution",
		Rules: []etl.FieldRule{
			etl.Ref("Solution", "Solution", refSolution),
			etl.Ref("Api_ou_donnee", "Api_ou_donnee", refApi),
			etl.RefList("Cas_d_usages", "Cas_d_usages", optional(refCasUsage)),
			etl.Same("Description"),
			etl.Same("Integration_realisee"),
		},
	}
}

func apisUtilesTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "apis_et_donnees_utiles",
		Label: "Api_ou_donnee",
		Rules: []etl.FieldRule{
			etl.Ref("Cas_d_usage", "Cas_d_usage", refCasUsage),
			etl.Ref("Api_ou_donnee", "Api_ou_donnee", refApi),
			etl.Copy("En_quoi_c_est_utile", "Utilite"),
		},
	}
}

// ── Contacts ───────────────────────────────────────────────

func contactsTransformer() *etl.RecordTransformer {
	return &etl.RecordTransformer{
		Name:  "contacts",
		Label: "Email",
		Rules: []etl.FieldRule{
			etl.Same("Nom"),
			etl.Same("Prenom"),
			etl.Same("Email"),
			etl.Same("Fonction"),
			etl.Ref("Operateur", "Operateur", optional(refOperateur)),
			etl.RefList("Solutions", "Solutions", optional(refSolution)),
		},
	}
}
