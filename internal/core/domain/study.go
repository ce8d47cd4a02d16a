package domain

// Team groups researchers and the studies they run.
type Team struct {
	Key             string   `json:"_key" bson:"_id"`
	Name            string   `json:"name" bson:"name"`
	ResearchersKeys []string `json:"researchersKeys" bson:"researchersKeys"`
	StudiesKeys     []string `json:"studiesKeys" bson:"studiesKeys"`
}

// HasResearcher reports whether researcherKey is a member of the team.
func (t *Team) HasResearcher(researcherKey string) bool {
	for _, k := range t.ResearchersKeys {
		if k == researcherKey {
			return true
		}
	}
	return false
}

// StudyGeneralities is the descriptive block of a study.
type StudyGeneralities struct {
	Title string `json:"title" bson:"title"`
}

// Study is the subset of a study description used by the core.
type Study struct {
	Key          string            `json:"_key" bson:"_id"`
	TeamKey      string            `json:"teamKey" bson:"teamKey"`
	Generalities StudyGeneralities `json:"generalities" bson:"generalities"`
}
