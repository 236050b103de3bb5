package service

import (
	"context"
	"os"
	"strings"
	"sync"

	"spread_mirror/pkg/logger"

	"gopkg.in/yaml.v2"
)

// Credentials — логин-пара гейтвея.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Provider резолвит именованную ссылку на креды. nil без ошибки —
// «секрета нет», вызывающий сам решает, чем подменить.
type Provider interface {
	Resolve(ctx context.Context, path string) (*Credentials, error)
}

// VaultFile — yaml-файл вида
//
//	followers/f-1:
//	  username: u1
//	  password: p1
//
// плюс переопределение через env SECRET_FOLLOWERS_F_1 = "user:pass".
// Файл читается лениво один раз.
type VaultFile struct {
	path string
	log  *logger.Logger

	once sync.Once
	data map[string]Credentials
}

func NewVaultFile(path string, log *logger.Logger) *VaultFile {
	return &VaultFile{path: path, log: log}
}

func (v *VaultFile) Resolve(_ context.Context, path string) (*Credentials, error) {
	if path == "" {
		return nil, nil
	}

	if c := fromEnv(path); c != nil {
		return c, nil
	}

	v.once.Do(v.load)

	c, ok := v.data[path]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *VaultFile) load() {
	v.data = make(map[string]Credentials)

	raw, err := os.ReadFile(v.path)
	if err != nil {
		// отсутствие файла не фатально: останутся env и плейсхолдеры
		v.log.Error("vault file %s unreadable: %v", v.path, err)
		return
	}
	if err := yaml.Unmarshal(raw, &v.data); err != nil {
		v.log.Error("vault file %s malformed: %v", v.path, err)
		v.data = make(map[string]Credentials)
	}
}

func fromEnv(path string) *Credentials {
	key := "SECRET_" + strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(path))
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	user, pass, ok := strings.Cut(val, ":")
	if !ok {
		return nil
	}
	return &Credentials{Username: user, Password: pass}
}
