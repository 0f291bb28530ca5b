package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
)

const DefaultOTPTTL = 10 * time.Minute

var (
	ErrAccountExists      = errcode.NewDuplicate("Already signed up using this email.")
	ErrAccountNotFound    = errcode.NewNotFound("No account found with this email and organization combination.")
	ErrInvalidCredentials = errcode.New(errcode.Unauthorized, "Invalid credentials. Please check your email, password, and organization name.")
	ErrInvalidOTP         = errcode.NewValidation("Invalid or expired OTP.")
	ErrPasswordMismatch   = errcode.New(errcode.Unauthorized, "Current password is incorrect.")
	ErrSamePassword       = errcode.NewValidation("New password must be different from current password.")
)

// Accounts 管理机构账号的注册、登录凭据与一次性验证码。
type Accounts struct {
	db     *gorm.DB
	otpTTL time.Duration
	now    func() time.Time
}

func NewAccounts(db *gorm.DB, otpTTL time.Duration) *Accounts {
	if otpTTL <= 0 {
		otpTTL = DefaultOTPTTL
	}
	return &Accounts{db: db, otpTTL: otpTTL, now: time.Now}
}

// OTPTTL is how long an issued code stays valid.
func (a *Accounts) OTPTTL() time.Duration { return a.otpTTL }

// Create inserts an account. mustChange marks accounts whose password was generated for the owner.
func (a *Accounts) Create(ctx context.Context, email, organization, password string, mustChange bool) (*database.OrgAccount, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	acct := &database.OrgAccount{
		Email:              NormalizeEmail(email),
		Organization:       strings.TrimSpace(organization),
		OrganizationKey:    OrganizationKey(organization),
		PasswordHash:       hash,
		EmailVerified:      mustChange,
		MustChangePassword: mustChange,
	}
	if err := a.db.WithContext(ctx).Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAccountExists
		}
		return nil, errcode.Persistence("create account", err)
	}
	return acct, nil
}

// Signup creates an unverified account and returns the signup code to email to its owner.
func (a *Accounts) Signup(ctx context.Context, email, organization, password string) (*database.OrgAccount, string, error) {
	acct, err := a.Create(ctx, email, organization, password, false)
	if err != nil {
		return nil, "", err
	}
	code, err := a.issue(ctx, acct, database.OTPPurposeSignup)
	if err != nil {
		return nil, "", err
	}
	return acct, code, nil
}

// Find looks an account up by its case-insensitive identity.
func (a *Accounts) Find(ctx context.Context, email, organization string) (*database.OrgAccount, error) {
	var acct database.OrgAccount
	err := a.db.WithContext(ctx).
		Where("email = ? AND organization_key = ?", NormalizeEmail(email), OrganizationKey(organization)).
		First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, errcode.Persistence("find account", err)
	}
	return &acct, nil
}

// ByID loads an account by primary key.
func (a *Accounts) ByID(ctx context.Context, id uint) (*database.OrgAccount, error) {
	var acct database.OrgAccount
	if err := a.db.WithContext(ctx).First(&acct, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, errcode.Persistence("load account", err)
	}
	return &acct, nil
}

// Authenticate checks the password of (email, organization). Unknown accounts and wrong
// passwords are indistinguishable to the caller.
func (a *Accounts) Authenticate(ctx context.Context, email, organization, password string) (*database.OrgAccount, error) {
	acct, err := a.Find(ctx, email, organization)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPasswordHash(password, acct.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// RequestReset stores a fresh reset code for the account and returns it.
func (a *Accounts) RequestReset(ctx context.Context, email, organization string) (*database.OrgAccount, string, error) {
	acct, err := a.Find(ctx, email, organization)
	if err != nil {
		return nil, "", err
	}
	code, err := a.issue(ctx, acct, database.OTPPurposeReset)
	if err != nil {
		return nil, "", err
	}
	return acct, code, nil
}

func (a *Accounts) issue(ctx context.Context, acct *database.OrgAccount, purpose string) (string, error) {
	code, err := GenerateOTP()
	if err != nil {
		return "", err
	}
	hash, err := HashPassword(code)
	if err != nil {
		return "", err
	}
	expires := a.now().UTC().Add(a.otpTTL)
	err = a.db.WithContext(ctx).Model(acct).Updates(map[string]any{
		"otp_hash":       hash,
		"otp_purpose":    purpose,
		"otp_expires_at": expires,
	}).Error
	if err != nil {
		return "", errcode.Persistence("store otp", err)
	}
	return code, nil
}

// match 返回持有该有效验证码的账号；organization 为空时在该邮箱的全部账号中查找。
func (a *Accounts) match(ctx context.Context, email, organization, code string) (*database.OrgAccount, error) {
	q := a.db.WithContext(ctx).
		Where("email = ? AND otp_hash IS NOT NULL AND otp_expires_at > ?", NormalizeEmail(email), a.now().UTC())
	if strings.TrimSpace(organization) != "" {
		q = q.Where("organization_key = ?", OrganizationKey(organization))
	}
	var candidates []database.OrgAccount
	if err := q.Find(&candidates).Error; err != nil {
		return nil, errcode.Persistence("find otp", err)
	}
	for i := range candidates {
		if CheckPasswordHash(strings.TrimSpace(code), *candidates[i].OTPHash) {
			return &candidates[i], nil
		}
	}
	return nil, ErrInvalidOTP
}

// VerifyOTP checks code. A signup code is consumed and verifies the email; a reset code stays
// valid so ResetPassword can use it.
func (a *Accounts) VerifyOTP(ctx context.Context, email, organization, code string) (*database.OrgAccount, error) {
	acct, err := a.match(ctx, email, organization, code)
	if err != nil {
		return nil, err
	}
	if acct.OTPPurpose != database.OTPPurposeSignup {
		return acct, nil
	}
	err = a.db.WithContext(ctx).Model(acct).Updates(map[string]any{
		"otp_hash":       nil,
		"otp_purpose":    "",
		"otp_expires_at": nil,
		"email_verified": true,
	}).Error
	if err != nil {
		return nil, errcode.Persistence("consume otp", err)
	}
	return acct, nil
}

// DiscardOTP 作废该邮箱（可限定机构）下尚未使用的验证码。
func (a *Accounts) DiscardOTP(ctx context.Context, email, organization string) error {
	q := a.db.WithContext(ctx).Model(&database.OrgAccount{}).
		Where("email = ? AND otp_hash IS NOT NULL", NormalizeEmail(email))
	if strings.TrimSpace(organization) != "" {
		q = q.Where("organization_key = ?", OrganizationKey(organization))
	}
	err := q.Updates(map[string]any{
		"otp_hash":       nil,
		"otp_purpose":    "",
		"otp_expires_at": nil,
	}).Error
	if err != nil {
		return errcode.Persistence("discard otp", err)
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the password.
func (a *Accounts) ResetPassword(ctx context.Context, email, organization, code, newPassword string) (*database.OrgAccount, error) {
	acct, err := a.match(ctx, email, organization, code)
	if err != nil {
		return nil, err
	}
	if acct.OTPPurpose != database.OTPPurposeReset {
		return nil, ErrInvalidOTP
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	err = a.db.WithContext(ctx).Model(acct).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
		"otp_hash":             nil,
		"otp_purpose":          "",
		"otp_expires_at":       nil,
	}).Error
	if err != nil {
		return nil, errcode.Persistence("reset password", err)
	}
	return acct, nil
}

// ChangePassword replaces the password of an authenticated account after checking the current one.
func (a *Accounts) ChangePassword(ctx context.Context, id uint, current, next string) (*database.OrgAccount, error) {
	acct, err := a.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CheckPasswordHash(current, acct.PasswordHash) {
		return nil, ErrPasswordMismatch
	}
	if strings.TrimSpace(current) == strings.TrimSpace(next) {
		return nil, ErrSamePassword
	}
	hash, err := HashPassword(next)
	if err != nil {
		return nil, err
	}
	err = a.db.WithContext(ctx).Model(acct).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	}).Error
	if err != nil {
		return nil, errcode.Persistence("change password", err)
	}
	acct.MustChangePassword = false
	return acct, nil
}

// PrincipalOf is the token identity of acct.
func PrincipalOf(acct *database.OrgAccount) Principal {
	return Principal{
		OrgID:              acct.ID,
		Email:              acct.Email,
		Organization:       acct.Organization,
		MustChangePassword: acct.MustChangePassword,
	}
}
