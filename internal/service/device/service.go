// Package device provisions physical units: generating their master
// secret, deriving their MQTT broker credentials, and verifying broker
// authentication attempts.
package device

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
	"github.com/voltgrid/csms/internal/secrets"
)

type Service struct {
	devices ports.DeviceRepository
	cipher  *secrets.Cipher
	log     *zap.Logger
}

func NewService(devices ports.DeviceRepository, cipher *secrets.Cipher, log *zap.Logger) ports.DeviceService {
	return &Service{
		devices: devices,
		cipher:  cipher,
		log:     log,
	}
}

// Provision registers a new unit and returns its broker credentials.
// The derived password is returned exactly once; only the encrypted
// master secret is stored.
func (s *Service) Provision(ctx context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error) {
	serial = domain.SanitizeChargePointID(serial)
	if serial == "" {
		return nil, nil, domain.ErrInvalidChargerID
	}

	existing, err := s.devices.FindBySerial(ctx, serial)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, domain.ErrDeviceExists
	}

	masterSecret, err := secrets.GenerateSecret()
	if err != nil {
		return nil, nil, err
	}
	encrypted, err := s.cipher.Encrypt(masterSecret)
	if err != nil {
		return nil, nil, err
	}

	device := &domain.Device{
		SerialNumber:    serial,
		TypeCode:        typeCode,
		EncryptedSecret: encrypted,
		EncryptionAlgo:  secrets.AlgoAESGCM,
		MQTTClientID:    secrets.MQTTClientID(typeCode, serial),
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.devices.Save(ctx, device); err != nil {
		return nil, nil, err
	}

	s.log.Info("Provisioned device",
		zap.String("serial", serial),
		zap.String("type_code", typeCode),
	)

	creds := &domain.MQTTCredentials{
		ClientID: device.MQTTClientID,
		Username: serial,
		Password: secrets.DeriveMQTTPassword(masterSecret, serial),
	}
	return device, creds, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Device, error) {
	return s.devices.FindAll(ctx)
}

func (s *Service) GetBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	device, err := s.devices.FindBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, domain.ErrNotFound
	}
	return device, nil
}

// VerifyCredentials re-derives the broker password from the stored
// secret and compares it with the attempt. Used by the broker's auth
// webhook.
func (s *Service) VerifyCredentials(ctx context.Context, serial, password string) (bool, error) {
	device, err := s.devices.FindBySerial(ctx, serial)
	if err != nil {
		return false, err
	}
	if device == nil || !device.Active {
		return false, nil
	}

	masterSecret, err := s.cipher.Decrypt(device.EncryptedSecret)
	if err != nil {
		s.log.Error("Failed to decrypt device secret",
			zap.String("serial", serial),
			zap.Error(err),
		)
		return false, err
	}

	return secrets.DeriveMQTTPassword(masterSecret, serial) == password, nil
}
