package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"talentCorner/internal/config"
)

// openPostgres starts a throwaway PostgreSQL container. Set TALENT_PG_TESTS=1 to run these tests.
func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("TALENT_PG_TESTS") != "1" {
		t.Skip("set TALENT_PG_TESTS=1 to run PostgreSQL integration tests")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("talentcorner"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := InitDatabase(config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Name:     "talentcorner",
		User:     "test",
		Password: "test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	db := openPostgres(t)
	require.NoError(t, Migrate(db))

	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestPostgresRankingUniquenessIgnoresCase(t *testing.T) {
	db := openPostgres(t)

	first := CandidateRanking{Email: "ada@example.test", Domain: "Engineering", SubDomain: "Go", SubmittedAt: time.Now()}
	require.NoError(t, db.Create(&first).Error)

	again := CandidateRanking{Email: "ADA@example.test", Domain: "Engineering", SubDomain: "go", SubmittedAt: time.Now()}
	err := db.Create(&again).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestPostgresOrgIdentityIsUnique(t *testing.T) {
	db := openPostgres(t)

	acct := OrgAccount{Email: "hr@acme.test", Organization: "Acme", OrganizationKey: "acme", PasswordHash: "x"}
	require.NoError(t, db.Create(&acct).Error)

	dup := OrgAccount{Email: "hr@acme.test", Organization: "ACME", OrganizationKey: "acme", PasswordHash: "y"}
	assert.ErrorIs(t, db.Create(&dup).Error, gorm.ErrDuplicatedKey)

	other := OrgAccount{Email: "hr@acme.test", Organization: "Globex", OrganizationKey: "globex", PasswordHash: "z"}
	assert.NoError(t, db.Create(&other).Error)
}
