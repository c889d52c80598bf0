package api

import (
	"errors"

	"gorm.io/gorm"

	iauth "github.com/charlesng35/timecapsule/internal/auth"
	"github.com/charlesng35/timecapsule/internal/realtime"
	"github.com/charlesng35/timecapsule/internal/services"
	"github.com/charlesng35/timecapsule/internal/storage"
	"github.com/charlesng35/timecapsule/pkg/mail"
)

// ServiceDeps carries the infrastructure shared by the domain services.
type ServiceDeps struct {
	DB       *gorm.DB
	Sessions *iauth.SessionService
	Objects  storage.ObjectStorage
	Mailer   mail.Mailer
	Notifier realtime.Notifier
	Auth     services.AuthConfig
	Options  []services.Option
}

// Services bundles every domain service served over HTTP.
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Capsules      *services.CapsuleService
	Lifecycle     *services.CapsuleLifecycleService
	Dashboard     *services.DashboardService
	Notifications *services.NotificationService
	Friends       *services.FriendService
	Ads           *services.AdvertisementService
}

// NewServices constructs the domain services on top of deps.
func NewServices(deps ServiceDeps) (*Services, error) {
	if deps.DB == nil {
		return nil, errors.New("database handle must be provided")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session service must be provided")
	}
	if deps.Objects == nil {
		return nil, errors.New("object storage must be provided")
	}

	var (
		out Services
		err error
	)

	if out.Notifications, err = services.NewNotificationService(deps.DB, deps.Notifier, deps.Options...); err != nil {
		return nil, err
	}
	if out.Capsules, err = services.NewCapsuleService(deps.DB, deps.Objects, out.Notifications, deps.Options...); err != nil {
		return nil, err
	}
	if out.Lifecycle, err = services.NewCapsuleLifecycleService(deps.DB, deps.Objects, deps.Options...); err != nil {
		return nil, err
	}
	if out.Dashboard, err = services.NewDashboardService(deps.DB); err != nil {
		return nil, err
	}
	if out.Friends, err = services.NewFriendService(deps.DB, out.Notifications); err != nil {
		return nil, err
	}
	if out.Ads, err = services.NewAdvertisementService(deps.DB); err != nil {
		return nil, err
	}
	if out.Auth, err = services.NewAuthService(deps.DB, deps.Sessions, deps.Mailer, deps.Auth, deps.Options...); err != nil {
		return nil, err
	}
	if out.Users, err = services.NewUserService(deps.DB, deps.Objects, deps.Options...); err != nil {
		return nil, err
	}

	return &out, nil
}
