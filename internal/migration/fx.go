package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

// All core tables are created automatically on startup so local and
// self-hosted installs work out of the box across the supported dialects.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return conn.AutoMigrate(
			&storedomain.Store{},
			&storedomain.RelayTarget{},
			&storedomain.ChatChannel{},
			&taxprofiledomain.TaxProfile{},
			&eventdomain.PaymentEvent{},
			&taskdomain.ReceiptTask{},
			&receiptdomain.Receipt{},
			&auditlogdomain.AppLog{},
		)
	}),
)
