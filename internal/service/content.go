package service

import (
	"context"
	"fmt"
	"strings"

	"hexorsite/internal/models"
	"hexorsite/internal/validation"
)

type ServiceInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=2000"`
	Category    string `json:"category" validate:"required,max=60"`
	Icon        string `json:"icon" validate:"max=120"`
	IsActive    *bool  `json:"is_active"`
}

func (in ServiceInput) toModel() models.Service {
	sv := models.Service{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Icon:        strings.TrimSpace(in.Icon),
		IsActive:    true,
	}
	if in.IsActive != nil {
		sv.IsActive = *in.IsActive
	}
	return sv
}

func (s *Service) ListServices(ctx context.Context, activeOnly bool) ([]models.Service, error) {
	return s.st.ListServices(ctx, activeOnly)
}

func (s *Service) GetService(ctx context.Context, id int64) (models.Service, error) {
	return s.st.GetService(ctx, id)
}

func (s *Service) CreateService(ctx context.Context, actor models.Identity, meta models.RequestMeta, in ServiceInput) (models.Service, error) {
	if err := validation.Struct(in); err != nil {
		return models.Service{}, err
	}
	sv, err := s.st.CreateService(ctx, in.toModel())
	if err != nil {
		return models.Service{}, err
	}
	s.audit(ctx, actor, meta, "create_service", "Created service: "+sv.Name)
	return sv, nil
}

func (s *Service) UpdateService(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64, in ServiceInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	sv := in.toModel()
	sv.ID = id
	if err := s.st.UpdateService(ctx, sv); err != nil {
		return err
	}
	s.audit(ctx, actor, meta, "update_service", fmt.Sprintf("Updated service: %d", id))
	return nil
}

func (s *Service) DeleteService(ctx context.Context, actor models.Identity, meta models.RequestMeta, id int64) error {
	if err := s.st.DeleteService(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, actor, meta, "delete_service", fmt.Sprintf("Deleted service: %d", id))
	return nil
}

type SubmissionInput struct {
	Name    string  `json:"name" validate:"required,max=120"`
	Email   string  `json:"email" validate:"required,email"`
	Company *string `json:"company" validate:"omitempty,max=120"`
	Service *string `json:"service" validate:"omitempty,max=120"`
	Message string  `json:"message" validate:"required,max=5000"`
}

// Submit stores a public enquiry and notifies the sales inbox. A failed
// notification never fails the submission.
func (s *Service) Submit(ctx context.Context, kind models.SubmissionKind, in SubmissionInput) (models.Submission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Struct(in); err != nil {
		return models.Submission{}, err
	}
	sub, err := s.st.CreateSubmission(ctx, models.Submission{
		Kind:    kind,
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Service: in.Service,
		Message: in.Message,
	})
	if err != nil {
		return models.Submission{}, err
	}
	if err := s.leads.NotifyLead(ctx, sub); err != nil {
		s.log.Warn().Err(err).Int64("submission_id", sub.ID).Msg("lead notification failed")
	}
	return sub, nil
}

func (s *Service) ListSubmissions(ctx context.Context, kind models.SubmissionKind) ([]models.Submission, error) {
	return s.st.ListSubmissions(ctx, kind)
}

func (s *Service) GetSubmission(ctx context.Context, kind models.SubmissionKind, id int64) (models.Submission, error) {
	return s.st.GetSubmission(ctx, kind, id)
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=new read replied archived"`
}

func (s *Service) UpdateSubmissionStatus(ctx context.Context, actor models.Identity, meta models.RequestMeta, kind models.SubmissionKind, id int64, in StatusInput) error {
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if err := validation.Struct(in); err != nil {
		return err
	}
	if err := s.st.UpdateSubmissionStatus(ctx, kind, id, in.Status, actor.ID); err != nil {
		return err
	}
	label := "contact"
	if kind == models.SubmissionGetInTouch {
		label = "get in touch"
	}
	s.audit(ctx, actor, meta, "update_message_status", fmt.Sprintf("Updated %s message %d to %s", label, id, in.Status))
	return nil
}

// ListActivity shows admins every entry and other users only their own.
func (s *Service) ListActivity(ctx context.Context, actor models.Identity, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if actor.IsAdmin() {
		return s.st.ListActivity(ctx, nil, limit)
	}
	return s.st.ListActivity(ctx, &actor.ID, limit)
}

func (s *Service) ListChat(ctx context.Context) ([]models.ChatMessage, error) {
	return s.st.ListChatMessages(ctx, 100)
}

// PostChat records a team chat message. The author always comes from the
// authenticated identity, never from the request body.
func (s *Service) PostChat(ctx context.Context, actor models.Identity, message string) (models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.ChatMessage{}, invalid("Message cannot be empty")
	}
	if len(message) > 2000 {
		return models.ChatMessage{}, invalid("Message must be at most 2000 characters")
	}
	return s.st.InsertChatMessage(ctx, models.ChatMessage{UserID: &actor.ID, UserName: actor.Name, UserRole: actor.Role, Message: message})
}

func (s *Service) DashboardStats(ctx context.Context, actor models.Identity) (models.DashboardStats, error) {
	if actor.IsAdmin() {
		return s.st.DashboardStats(ctx, nil)
	}
	return s.st.DashboardStats(ctx, &actor.ID)
}
