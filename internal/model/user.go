package model

// AuthUser はログイン中のユーザーを表す。
// 存在することが保護ページへのアクセス条件になる。
type AuthUser struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
}

// DisplayName は画面表示用の名前を返す。
func (u *AuthUser) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
