package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Phone        *string    `json:"phone"`
	Position     *string    `json:"position"`
	ProfilePic   *string    `json:"profile_pic"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	Phone      *string `json:"phone"`
	Position   *string `json:"position"`
	ProfilePic *string `json:"profile_pic"`
	IsActive   bool    `json:"is_active"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (u User) Identity() Identity {
	return Identity{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Phone:      u.Phone,
		Position:   u.Position,
		ProfilePic: u.ProfilePic,
		IsActive:   u.IsActive,
	}
}

type Session struct {
	ID        int64
	UserID    int64
	TokenHash string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
}

type ActivityLogEntry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail *string   `json:"user_email,omitempty"`
	Action    string    `json:"action"`
	Details   *string   `json:"details"`
	IPAddress *string   `json:"ip_address"`
	UserAgent *string   `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Icon        string    `json:"icon"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SubmissionKind string

const (
	SubmissionContact    SubmissionKind = "contact"
	SubmissionGetInTouch SubmissionKind = "get_in_touch"
)

type Submission struct {
	ID            int64          `json:"id"`
	Kind          SubmissionKind `json:"kind"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Company       *string        `json:"company"`
	Service       *string        `json:"service"`
	Message       string         `json:"message"`
	Status        string         `json:"status"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	UpdatedBy     *int64         `json:"updated_by"`
	UpdatedByName *string        `json:"updated_by_name"`
	UpdatedAt     *time.Time     `json:"updated_at"`
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserRole  string    `json:"user_role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TotalUsers            int `json:"totalUsers"`
	TotalServices         int `json:"totalServices"`
	NewContactMessages    int `json:"newContactMessages"`
	NewGetInTouchMessages int `json:"newGetInTouchMessages"`
	TotalActivityLogs     int `json:"totalActivityLogs"`
}

// RequestMeta carries the client details recorded in the activity log.
type RequestMeta struct {
	IP        string
	UserAgent string
}
