package exam

const CategoryOther = "Outros"

// Categories lists the exam categories the analysis is asked to use, in
// display order.
var Categories = []string{
	"Hemograma",
	"Lipidograma",
	"Glicemia",
	"Hormônios",
	"Tireoide",
	"Função Hepática",
	"Função Renal",
	"Vitaminas e Minerais",
	"Exame de Urina",
	"Exame de Fezes",
	"Exames de Imagem",
	CategoryOther,
}
