package filter

import (
	"net/url"
	"sync"

	"github.com/hitoshi/markboard/internal/model"
)

// 生徒一覧のクエリパラメータ名。
const (
	FieldClass = "class"
	FieldRisk  = "risk"
	FieldQuery = "q"
)

// Chip は適用中のフィルタの表示用ラベル。
type Chip struct {
	Key   string
	Label string
}

// State はLocationのクエリ文字列を読み書きする絞り込み状態。
type State struct {
	mu  sync.Mutex
	loc Location
}

// NewState はStateの新しいインスタンスを生成する。
func NewState(loc Location) *State {
	return &State{loc: loc}
}

// Get はフィールドの現在値を返す。未設定の場合は空文字列。
func (s *State) Get(field string) string {
	return s.loc.Query().Get(field)
}

// Set はフィールドの値を書き込む。空文字列の場合はキーごと削除する。
func (s *State) Set(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.loc.Query()
	if value == "" {
		v.Del(field)
	} else {
		v.Set(field, value)
	}
	s.loc.Replace(v)
}

// Toggle は選択中の値と同じ値ならキーを削除し、異なればその値を設定する。
func (s *State) Toggle(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.loc.Query()
	if v.Get(field) == value {
		v.Del(field)
	} else {
		v.Set(field, value)
	}
	s.loc.Replace(v)
}

// Filter は現在のクエリ文字列から絞り込み条件を導出する。
func (s *State) Filter() model.StudentFilter {
	return FromValues(s.loc.Query())
}

// ActiveChips は適用中のフィルタのラベルをリスク、クラスの順に返す。
func (s *State) ActiveChips() []Chip {
	return ChipsFor(s.Filter())
}

// ChipsFor はfのフィルタのラベルをリスク、クラスの順に返す。
func ChipsFor(f model.StudentFilter) []Chip {
	var chips []Chip
	if f.Risk != "" {
		chips = append(chips, Chip{Key: FieldRisk, Label: "Риск: " + f.Risk})
	}
	if f.Class != "" {
		chips = append(chips, Chip{Key: FieldClass, Label: "Класс: " + f.Class})
	}
	return chips
}

// FromValues はクエリパラメータから絞り込み条件を生成する。
func FromValues(v url.Values) model.StudentFilter {
	return model.StudentFilter{
		Class: v.Get(FieldClass),
		Risk:  v.Get(FieldRisk),
		Query: v.Get(FieldQuery),
	}
}
