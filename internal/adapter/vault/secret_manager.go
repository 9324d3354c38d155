package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager pulls runtime secrets from Vault so they never live in
// the config file on disk.
type SecretManager struct {
	client *api.Client
}

func NewSecretManager(address, token string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

func (sm *SecretManager) readField(path, field string) (string, error) {
	secret, err := sm.client.Logical().Read(path)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", fmt.Errorf("vault: no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("vault: unexpected secret shape at %s", path)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("vault: field %s missing at %s", field, path)
	}
	return value, nil
}

func (sm *SecretManager) GetDatabaseCredentials() (string, error) {
	return sm.readField("secret/data/database", "connection_string")
}

// GetMasterKey returns the key the provisioning flow uses to derive
// and encrypt per-device broker secrets.
func (sm *SecretManager) GetMasterKey() (string, error) {
	return sm.readField("secret/data/provisioning", "master_key")
}

func (sm *SecretManager) GetJWTSecret() (string, error) {
	return sm.readField("secret/data/jwt", "secret")
}
