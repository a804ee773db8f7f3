package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"docuchat/internal/app"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/response"
)

func newAuthRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	authService := app.NewAuthService(repository.NewUserRepository(db), "test-secret", time.Hour)
	h := NewAuthHandler(authService)

	router := newEngine(0)
	router.POST("/api/auth/register", h.Register)
	router.POST("/api/auth/login", h.Login)
	return router, mock
}

func userRows(id uint, username, email, hash string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash"}).
		AddRow(id, username, email, hash)
}

func TestRegister(t *testing.T) {
	t.Run("creates account and returns token", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("alice", 1).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectQuery("SELECT \\* FROM `users` WHERE email = \\?").
			WithArgs("alice@example.com", 1).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `users`").
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		rec := performJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "super-secret-pw",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Equal(t, response.CodeOK, env.Code)

		var data struct {
			Token string `json:"token"`
			User  struct {
				ID       uint   `json:"id"`
				Username string `json:"username"`
				Email    string `json:"email"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.NotEmpty(t, data.Token)
		assert.Equal(t, uint(7), data.User.ID)
		assert.Equal(t, "alice", data.User.Username)
		assert.Equal(t, "alice@example.com", data.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken username", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("alice", 1).
			WillReturnRows(userRows(2, "alice", "old@example.com", "x"))

		rec := performJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "super-secret-pw",
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeUsernameExists, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken email", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("alice", 1).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectQuery("SELECT \\* FROM `users` WHERE email = \\?").
			WithArgs("alice@example.com", 1).
			WillReturnRows(userRows(2, "bob", "alice@example.com", "x"))

		rec := performJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "super-secret-pw",
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeEmailExists, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects short password", func(t *testing.T) {
		router, _ := newAuthRouter(t)

		rec := performJSON(t, router, http.MethodPost, "/api/auth/register", gin.H{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "short",
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, response.CodeBadRequest, decodeEnvelope(t, rec).Code)
	})
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("alice", 1).
			WillReturnRows(userRows(7, "alice", "alice@example.com", string(hash)))

		rec := performJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"username": "alice",
			"password": "super-secret-pw",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Equal(t, response.CodeOK, env.Code)

		var data struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.NotEmpty(t, data.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("alice", 1).
			WillReturnRows(userRows(7, "alice", "alice@example.com", string(hash)))

		rec := performJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"username": "alice",
			"password": "not-the-password",
		})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, response.CodeInvalidCredentials, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		router, mock := newAuthRouter(t)

		mock.ExpectQuery("SELECT \\* FROM `users` WHERE username = \\?").
			WithArgs("ghost", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		rec := performJSON(t, router, http.MethodPost, "/api/auth/login", gin.H{
			"username": "ghost",
			"password": "super-secret-pw",
		})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, response.CodeInvalidCredentials, decodeEnvelope(t, rec).Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMe(t *testing.T) {
	db, mock := newMockDB(t)
	authService := app.NewAuthService(repository.NewUserRepository(db), "test-secret", time.Hour)
	h := NewAuthHandler(authService)

	router := newEngine(7)
	router.GET("/api/auth/me", h.Me)

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE `users`.`id` = \\?").
		WithArgs(7, 1).
		WillReturnRows(userRows(7, "alice", "alice@example.com", "x"))

	rec := performJSON(t, router, http.MethodGet, "/api/auth/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, response.CodeOK, env.Code)

	var data struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, uint(7), data.ID)
	assert.Equal(t, "alice", data.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}
