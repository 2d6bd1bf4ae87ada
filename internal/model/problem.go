package model

// Languages the editor and executor support.
const (
	LangJavaScript = "javascript"
	LangPython     = "python"
	LangJava       = "java"
)

// CatalogProblem is a problem-bank entry. Only the fields the live session
// needs are modelled.
type CatalogProblem struct {
	ID          string            `json:"id" bson:"id"`
	Title       string            `json:"title" bson:"title"`
	Difficulty  string            `json:"difficulty" bson:"difficulty"`
	StarterCode map[string]string `json:"starterCode" bson:"starterCode"`
}

// Starter returns the starter code for language, or "".
func (p *CatalogProblem) Starter(language string) string {
	if p == nil {
		return ""
	}
	return p.StarterCode[language]
}
