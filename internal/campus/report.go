package campus

// ScoreReportKeyPrefix namespaces the pre-fetched score reports in the
// shared cache, keyed by the bound identity.
const ScoreReportKeyPrefix = "wechat:user:scoreforweb:"

// ScoreReport is the score page payload the score collaborator caches
// after a successful query. Absence of a report for a bound identity is
// recoverable: the user's next query repopulates it.
type ScoreReport struct {
	RealName   string     `json:"realName"`
	SchoolYear string     `json:"schoolYear"`
	SchoolTerm string     `json:"schoolTerm"`
	ScoreInfo  [][]string `json:"scoreInfo"`
	UpdateTime string     `json:"updateTime"`
}
