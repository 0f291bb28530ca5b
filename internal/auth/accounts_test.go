package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentCorner/internal/database"
	"talentCorner/internal/database/dbtest"
	"talentCorner/internal/errcode"
)

func TestSignupNormalizesIdentityAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)

	acct, code, err := accounts.Signup(ctx, " HR@Acme.test ", " Acme Corp ", "s3cret-pass")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, "hr@acme.test", acct.Email)
	assert.Equal(t, "Acme Corp", acct.Organization)
	assert.Equal(t, "acme corp", acct.OrganizationKey)
	assert.False(t, acct.EmailVerified)
	assert.NotEqual(t, "s3cret-pass", acct.PasswordHash)

	_, _, err = accounts.Signup(ctx, "hr@acme.test", "ACME CORP", "another-pass")
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, errcode.Duplicate, errcode.CodeOf(err))

	// 同一邮箱可以属于另一个机构。
	_, _, err = accounts.Signup(ctx, "hr@acme.test", "Globex", "another-pass")
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)
	_, err := accounts.Create(ctx, "hr@acme.test", "Acme", "s3cret-pass", false)
	require.NoError(t, err)

	acct, err := accounts.Authenticate(ctx, "HR@acme.test", "acme", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "Acme", PrincipalOf(acct).Organization)

	_, err = accounts.Authenticate(ctx, "hr@acme.test", "Acme", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody@acme.test", "Acme", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignupOTPIsConsumedOnVerify(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	accounts := NewAccounts(db, time.Minute)

	acct, code, err := accounts.Signup(ctx, "hr@acme.test", "Acme", "s3cret-pass")
	require.NoError(t, err)

	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "", "000000")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "", code)
	require.NoError(t, err)

	var stored database.OrgAccount
	require.NoError(t, db.First(&stored, acct.ID).Error)
	assert.True(t, stored.EmailVerified)
	assert.Nil(t, stored.OTPHash)

	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "", code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestResetPasswordFlow(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)
	_, err := accounts.Create(ctx, "hr@acme.test", "Acme", "old-password", true)
	require.NoError(t, err)

	_, _, err = accounts.RequestReset(ctx, "hr@acme.test", "Globex")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, code, err := accounts.RequestReset(ctx, "hr@acme.test", "ACME")
	require.NoError(t, err)

	// 校验重置验证码不会消耗它。
	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "Acme", code)
	require.NoError(t, err)

	acct, err := accounts.ResetPassword(ctx, "hr@acme.test", "Acme", code, "new-password")
	require.NoError(t, err)
	assert.Equal(t, "acme", acct.OrganizationKey)

	_, err = accounts.Authenticate(ctx, "hr@acme.test", "Acme", "new-password")
	require.NoError(t, err)
	_, err = accounts.ResetPassword(ctx, "hr@acme.test", "Acme", code, "third-password")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestDiscardOTPInvalidatesTheCode(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)
	_, err := accounts.Create(ctx, "hr@acme.test", "Acme", "old-password", false)
	require.NoError(t, err)
	_, err = accounts.Create(ctx, "hr@acme.test", "Globex", "old-password", false)
	require.NoError(t, err)

	_, acmeCode, err := accounts.RequestReset(ctx, "hr@acme.test", "Acme")
	require.NoError(t, err)
	_, globexCode, err := accounts.RequestReset(ctx, "hr@acme.test", "Globex")
	require.NoError(t, err)

	require.NoError(t, accounts.DiscardOTP(ctx, "HR@acme.test", "ACME"))

	_, err = accounts.ResetPassword(ctx, "hr@acme.test", "Acme", acmeCode, "new-password")
	assert.ErrorIs(t, err, ErrInvalidOTP)
	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "Globex", globexCode)
	assert.NoError(t, err)
}

func TestExpiredOTPIsRejected(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)
	issued := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	accounts.now = func() time.Time { return issued }

	_, code, err := accounts.Signup(ctx, "hr@acme.test", "Acme", "s3cret-pass")
	require.NoError(t, err)

	accounts.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = accounts.VerifyOTP(ctx, "hr@acme.test", "Acme", code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(dbtest.Open(t), time.Minute)
	acct, err := accounts.Create(ctx, "hr@acme.test", "Acme", "generated-pass", true)
	require.NoError(t, err)
	assert.True(t, acct.MustChangePassword)

	_, err = accounts.ChangePassword(ctx, acct.ID, "wrong", "brand-new-pass")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	_, err = accounts.ChangePassword(ctx, acct.ID, "generated-pass", "generated-pass")
	assert.ErrorIs(t, err, ErrSamePassword)

	updated, err := accounts.ChangePassword(ctx, acct.ID, "generated-pass", "brand-new-pass")
	require.NoError(t, err)
	assert.False(t, updated.MustChangePassword)

	_, err = accounts.Authenticate(ctx, "hr@acme.test", "Acme", "brand-new-pass")
	assert.NoError(t, err)
}
