package usecase

import (
	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/repository"
	"app/internal/token"

	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	//400 入力不足・形式不正
	ErrValidation = errors.New("validation error")
	//400 username/passwordが空
	ErrMissingCredentials = errors.New("missing credentials")
	//403 認証失敗（ユーザー無し・パスワード不一致・停止中）
	ErrInvalidCredentials = errors.New("invalid credentials")
	//401 refresh cookieが無い
	ErrMissingRefreshToken = errors.New("missing refresh token")
	//401 refresh tokenが無効・期限切れ
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	//401 失効済みrefreshの再利用。盗難の兆候として全セッション失効
	ErrSecurityIncident = errors.New("security incident")
	//401 refresh tokenの所有ユーザーが存在しない・停止中
	ErrInvalidUser = errors.New("invalid user")
	//401 アクセストークンが無効（署名・形式・期限）
	ErrInvalidToken = errors.New("invalid token")
	//401 sub claimが正の整数ではない
	ErrInvalidSubject = errors.New("invalid subject")
	//401 subに対応するユーザーがいない
	ErrUnknownUser = errors.New("unknown user")
	//404 対象セッションなし
	ErrSessionNotFound = errors.New("session not found")
	//409 username重複
	ErrConflict = errors.New("conflict")
	//500 署名シークレット未設定（設定ミス。デフォルト値では代用しない）
	ErrMissingSecret = errors.New("signing secret not configured")
	//500
	ErrInternal = errors.New("internal error")
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, username string, password string) error
	ValidateLogin(ctx context.Context, username string, password string) error
	ValidateRefresh(ctx context.Context, refreshToken string) error
}

type UserDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

type AccessTokenDTO struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type SessionDTO struct {
	ID        int64     `json:"id"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthRegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthRegisterResponse struct {
	User UserDTO `json:"user"`
}

type AuthLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   int     `json:"expires_in"`
	User        UserDTO `json:"user"`
}

type AuthVerifyResponse struct {
	Valid bool    `json:"valid"`
	User  UserDTO `json:"user"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
	CsrfTokenPlain    string
}

type RefreshResult struct {
	Body AccessTokenDTO
	// ローテーション無効時は空（cookieは据え置き）
	RefreshTokenPlain string
	CsrfTokenPlain    string
}

type AuthUsecase struct {
	cfg       config.Config
	users     repository.UserRepository
	rtRepo    repository.RefreshTokenRepository
	validator AuthValidator
}

func NewAuthUsecase(
	cfg config.Config,
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	validator AuthValidator,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		rtRepo:    rtRepo,
		validator: validator,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (*AuthRegisterResponse, error) {
	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, req.Username, req.Password); err != nil {
		return nil, ErrValidation
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		IsActive:     true,
	}

	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrConflict
		}
		return nil, ErrInternal
	}

	return &AuthRegisterResponse{User: toUserDTO(user)}, nil
}

// ログイン。アクセストークン発行＋refresh token保存。
// refreshの保存に失敗したら全体を失敗させる（cookieなしの
// 中途半端なセッションは作らない）
func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest, userAgent string, ip string) (*LoginResult, error) {
	//入力検証
	if err := u.validator.ValidateLogin(ctx, req.Username, req.Password); err != nil {
		return nil, ErrMissingCredentials
	}

	//ユーザー取得
	user, err := u.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInternal
	}
	if user == nil {
		// ユーザー不在でもbcryptを1回回して応答時間を揃える
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(req.Password))
		return nil, ErrInvalidCredentials
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	//シークレット未設定ならトークンは一切発行しない
	if u.cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	//last_login更新（失敗してもログインは通す）
	now := time.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	//access token発行
	accessToken, expiresIn, err := u.issueAccessToken(user, now)
	if err != nil {
		return nil, ErrInternal
	}

	//refresh token発行（DBにはhashのみ保存）
	refreshPlain, err := token.GenerateOpaque(token.DefaultOpaqueLength)
	if err != nil {
		return nil, ErrInternal
	}

	meta := model.TokenMetadata{UserAgent: userAgent, IPAddress: ip}
	if err := u.rtRepo.Store(ctx, user.ID, refreshPlain, now.Add(u.cfg.RefreshTokenTTL), meta); err != nil {
		return nil, ErrInternal
	}

	//CSRF token（double submit用。サーバー側では保持しない）
	csrfPlain, err := token.GenerateOpaque(32)
	if err != nil {
		return nil, ErrInternal
	}

	return &LoginResult{
		Body: AuthLoginResponse{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
			User:        toUserDTO(user),
		},
		RefreshTokenPlain: refreshPlain,
		CsrfTokenPlain:    csrfPlain,
	}, nil
}

// refresh。旧tokenの失効と新tokenの発行はrepo側で1トランザクション
func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain string, userAgent string, ip string) (*RefreshResult, error) {
	if err := u.validator.ValidateRefresh(ctx, refreshTokenPlain); err != nil {
		return nil, ErrMissingRefreshToken
	}

	if u.cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	now := time.Now()
	meta := model.TokenMetadata{UserAgent: userAgent, IPAddress: ip}

	var (
		old      *model.RefreshToken
		newPlain string
		err      error
	)

	if u.cfg.RefreshRotation {
		newPlain, err = token.GenerateOpaque(token.DefaultOpaqueLength)
		if err != nil {
			return nil, ErrInternal
		}
		old, err = u.rtRepo.Rotate(ctx, refreshTokenPlain, newPlain, now.Add(u.cfg.RefreshTokenTTL), meta)
	} else {
		old, err = u.rtRepo.Validate(ctx, refreshTokenPlain)
		newPlain = ""
	}

	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRefreshTokenRevoked):
			// 失効済みの再利用＝盗難の疑い。所有者の全セッションを落とす
			if old != nil {
				_ = u.rtRepo.RevokeAllByUserID(ctx, old.UserID)
			}
			return nil, ErrSecurityIncident
		case errors.Is(err, repository.ErrRefreshTokenNotFound),
			errors.Is(err, repository.ErrRefreshTokenExpired):
			return nil, ErrInvalidRefreshToken
		default:
			return nil, ErrInternal
		}
	}

	//所有ユーザー確認
	user, err := u.users.FindByID(ctx, old.UserID)
	if err != nil {
		return nil, ErrInternal
	}
	if user == nil || !user.IsActive {
		// ユーザーが消えている。発行済みの新tokenも残さない
		_ = u.rtRepo.RevokeAllByUserID(ctx, old.UserID)
		return nil, ErrInvalidUser
	}

	//access再発行
	accessToken, expiresIn, err := u.issueAccessToken(user, now)
	if err != nil {
		return nil, ErrInternal
	}

	//CSRFも更新
	csrfPlain, err := token.GenerateOpaque(32)
	if err != nil {
		return nil, ErrInternal
	}

	return &RefreshResult{
		Body: AccessTokenDTO{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
		},
		RefreshTokenPlain: newPlain,
		CsrfTokenPlain:    csrfPlain,
	}, nil
}

// ログアウト。cookieが無い・既に無効でもクライアントには成功を返す
func (u *AuthUsecase) Logout(ctx context.Context, refreshTokenPlain string) *SuccessResponse {
	if refreshTokenPlain != "" {
		//失敗してもbest effort
		_, _ = u.rtRepo.Revoke(ctx, refreshTokenPlain)
	}

	return &SuccessResponse{Message: "logged out"}
}

// Bearerトークンの検証。成功でユーザーDTOを返す
func (u *AuthUsecase) Verify(ctx context.Context, bearerToken string) (*UserDTO, error) {
	if u.cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	claims, err := token.NewCodec(u.cfg.JWTSecret).Decode(bearerToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := parseSubject(claims["sub"])
	if err != nil || userID <= 0 {
		return nil, ErrInvalidSubject
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrInternal
	}
	if user == nil || !user.IsActive {
		return nil, ErrUnknownUser
	}

	dto := toUserDTO(user)
	return &dto, nil
}

// 有効なセッション一覧（「他の端末からログアウト」表示用）
func (u *AuthUsecase) Sessions(ctx context.Context, userID int64, limit int) ([]SessionDTO, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	recs, err := u.rtRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, ErrInternal
	}

	out := make([]SessionDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, SessionDTO{
			ID:        rec.ID,
			UserAgent: rec.UserAgent,
			IPAddress: rec.IPAddress,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}

	return out, nil
}

// ID指定のセッション失効。所有者スコープ付き
func (u *AuthUsecase) RevokeSession(ctx context.Context, userID int64, sessionID int64) error {
	ok, err := u.rtRepo.RevokeByID(ctx, userID, sessionID)
	if err != nil {
		return ErrInternal
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// 期限切れrefresh tokenの掃除（cronから呼ぶ）
func (u *AuthUsecase) CleanExpired(ctx context.Context) (int64, error) {
	return u.rtRepo.DeleteExpired(ctx, time.Now())
}

// jwt発行。claims: iss/sub/iat/exp/jti/roles
func (u *AuthUsecase) issueAccessToken(user *model.User, now time.Time) (string, int, error) {
	exp := now.Add(u.cfg.AccessTokenTTL)

	claims := map[string]interface{}{
		"iss":   u.cfg.TokenIssuer,
		"sub":   strconv.FormatInt(user.ID, 10),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
		"roles": []string{string(user.Role)},
	}

	signed, err := token.NewCodec(u.cfg.JWTSecret).Encode(claims)
	if err != nil {
		return "", 0, err
	}

	return signed, int(u.cfg.AccessTokenTTL.Seconds()), nil
}

// sub claimをint64へ。文字列エンコードが正だが数値も許容する
func parseSubject(v interface{}) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case float64:
		return int64(t), nil
	default:
		return 0, errors.New("invalid sub")
	}
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:       u.ID,
		Username: u.Username,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
}

// タイミング調整用のダミーハッシュ（"password"のbcrypt）
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
