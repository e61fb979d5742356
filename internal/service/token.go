package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor тот, от чьего имени открыта лента.
type Actor struct {
	PersonID string `json:"personId"`
	Role     string `json:"role"`
	CampusID string `json:"campusId,omitempty"`
}

// TokenManager отвечает за выпуск и проверку JWT.
type TokenManager struct {
	accessSecret []byte
	accessTTL    time.Duration
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret string, accessTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret: []byte(accessSecret),
		accessTTL:    accessTTL,
	}
}

// GenerateAccess выпускает access токен для участника.
func (m *TokenManager) GenerateAccess(actor Actor) (string, time.Time, error) {
	if actor.PersonID == "" {
		return "", time.Time{}, fmt.Errorf("token: personId обязателен")
	}
	now := time.Now()
	exp := now.Add(m.accessTTL)

	claims := jwt.MapClaims{
		"sub":  actor.PersonID,
		"role": actor.Role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	if actor.CampusID != "" {
		claims["campus_id"] = actor.CampusID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess извлекает участника из access токена.
func (m *TokenManager) ParseAccess(token string) (Actor, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.accessSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, err
	}
	if !parsed.Valid {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}

	role, _ := claims["role"].(string)
	campusID, _ := claims["campus_id"].(string)

	return Actor{PersonID: sub, Role: role, CampusID: campusID}, nil
}
