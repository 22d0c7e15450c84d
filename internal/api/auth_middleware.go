package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxStaffIDKey = "staff_id"
	CtxClaimsKey  = "staff_claims"
)

// StaffClaims токен сотрудника; выпускается внешним сервисом авторизации
type StaffClaims struct {
	StaffID     string `json:"staff_id"`
	HotelID     string `json:"hotel_id"`
	Role        string `json:"role"`
	IsSuperuser bool   `json:"is_superuser"`
	IsManager   bool   `json:"is_manager"`
	jwt.RegisteredClaims
}

// JWTMiddleware проверяет Bearer-токен и кладет данные сотрудника в контекст
func JWTMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Отсутствует заголовок Authorization"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Формат Authorization: 'Bearer <token>'"})
			return
		}

		claims, err := ParseStaffToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Недействительный или просроченный токен"})
			return
		}

		c.Set(CtxStaffIDKey, claims.StaffID)
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// ParseStaffToken проверяет подпись HMAC и возвращает данные сотрудника
func ParseStaffToken(secret, tokenStr string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неверный метод подписи")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.StaffID == "" {
		return nil, fmt.Errorf("токен без staff_id")
	}
	return claims, nil
}

// RequireManager пропускает только менеджеров и суперпользователей
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || !(claims.IsManager || claims.IsSuperuser) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Требуются права менеджера"})
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *StaffClaims {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*StaffClaims)
	return claims
}

func staffIDFrom(c *gin.Context) string {
	return c.GetString(CtxStaffIDKey)
}

// authorizeHotel проверяет, что сотрудник работает с данными своего отеля
func authorizeHotel(c *gin.Context, hotelID string) bool {
	claims := claimsFrom(c)
	if claims != nil && (claims.IsSuperuser || claims.HotelID == hotelID) {
		return true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Нет доступа к данным отеля"})
	return false
}

// HotelScope проверяет доступ к отелю из пути :hotel_id
func HotelScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorizeHotel(c, c.Param("hotel_id")) {
			return
		}
		c.Next()
	}
}

// sameHotel отвечает 404, если сущность принадлежит другому отелю
func sameHotel(c *gin.Context, hotelID string) bool {
	if hotelID == c.Param("hotel_id") {
		return true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Не найдено", "code": "not_found"})
	return false
}
