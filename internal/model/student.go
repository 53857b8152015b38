// Package model はドメインモデルを定義する。
package model

import "net/url"

// Risk はバックエンドが付与する生徒のリスク区分を表す。
// クライアント側では表示以外の意味を持たない。
type Risk string

const (
	// RiskA はリスク区分A。
	RiskA Risk = "A"
	// RiskB はリスク区分B。
	RiskB Risk = "B"
	// RiskC はリスク区分C。
	RiskC Risk = "C"
	// RiskTwo は要注意の区分。
	RiskTwo Risk = "RISK2"
)

// Risks はフィルタパネルに並べるリスク区分の一覧。
var Risks = []Risk{RiskA, RiskB, RiskC, RiskTwo}

// Classes はフィルタパネルに並べるクラスの一覧。
var Classes = []string{"5A", "6A", "7A", "7B", "8A"}

// Student は一覧で取得される生徒を表す。
// クライアント側で変更することはない。
type Student struct {
	ID       string  `json:"id"`
	FullName string  `json:"fio"`
	Class    string  `json:"class"`
	Average  float64 `json:"avg"`
	Risk     Risk    `json:"risk"`
}

// SubjectPerformance は科目ごとの成績。
type SubjectPerformance struct {
	Name    string    `json:"name"`
	Average float64   `json:"avg"`
	Marks   []float64 `json:"marks"`
}

// Attendance は出席の集計値。
type Attendance struct {
	TotalLessons int `json:"totalLessons"`
	Missed       int `json:"missed"`
	Late         int `json:"late"`
}

// TrendPoint は成績推移グラフの1点。日付の昇順で並ぶ。
type TrendPoint struct {
	Date    string  `json:"date"`
	Average float64 `json:"avg"`
}

// StudentDetail は生徒カード画面で使う詳細情報。
type StudentDetail struct {
	Student
	Subjects   []SubjectPerformance `json:"subjects"`
	Attendance Attendance           `json:"attendance"`
	Trend      []TrendPoint         `json:"trend"`
}

// StudentList は GET /api/students のレスポンス。
type StudentList struct {
	Items []Student `json:"items"`
	Total int       `json:"total"`
}

// StudentFilter は生徒一覧の絞り込み条件。
// 空文字列のフィールドは条件なしを意味する。
type StudentFilter struct {
	Class string
	Risk  string
	Query string
}

// IsZero は条件が1つも指定されていないかを返す。
func (f StudentFilter) IsZero() bool {
	return f.Class == "" && f.Risk == "" && f.Query == ""
}

// Values は条件をクエリパラメータに変換する。空のフィールドはキーごと含めない。
func (f StudentFilter) Values() url.Values {
	v := url.Values{}
	if f.Class != "" {
		v.Set("class", f.Class)
	}
	if f.Risk != "" {
		v.Set("risk", f.Risk)
	}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	return v
}
