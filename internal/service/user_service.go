package service

import (
	"errors"
	"time"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/pkg/jwt"

	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
)

// UserService handles user-related operations
type UserService struct {
	db     *gorm.DB
	tokens *jwt.Service
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, tokens *jwt.Service) *UserService {
	return &UserService{db: db, tokens: tokens}
}

// CreateUser creates a new user
func (s *UserService) CreateUser(req *models.CreateUserRequest) (*models.User, string, error) {
	// Check if user already exists
	var existingUser models.User
	result := s.db.Where("email = ?", req.Email).First(&existingUser)
	if result.RowsAffected > 0 {
		return nil, "", ErrUserAlreadyExists
	}

	role := req.Role
	if role == "" || !jwt.ValidRole(jwt.Role(role)) {
		role = string(jwt.RoleUser)
	}

	user := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, jwt.Role(user.Role))
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(req *models.LoginRequest) (*models.User, string, error) {
	var user models.User
	result := s.db.Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", result.Error
	}

	if !user.Active {
		return nil, "", ErrInvalidCredentials
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, jwt.Role(user.Role))
	if err != nil {
		return nil, "", err
	}

	s.db.Model(&user).Update("last_login", time.Now())

	return &user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// UpdateUserRole changes a user's role (admin operation)
func (s *UserService) UpdateUserRole(id uint, role string) (*models.User, error) {
	if !jwt.ValidRole(jwt.Role(role)) {
		return nil, ErrInvalidRole
	}

	user, err := s.GetUserByID(id)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(user).Update("role", role).Error; err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	result := s.db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}
