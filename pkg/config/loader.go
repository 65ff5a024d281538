package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	mu    sync.Mutex
	cache = map[reflect.Type]*entry{}
)

// LoadDotEnv copies variables from dotenv files into the process environment.
// Variables already set win. With no paths it reads ./.env and ignores a
// missing file; explicitly named files must exist.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrDotEnv, err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrDotEnv, err)
	}
	return nil
}

// Load parses the environment into T once per type and returns the cached
// value afterwards. A failed parse is cached too, so startup reports it
// consistently.
//
//	type Postgres struct {
//		URL string `env:"PG_CONN_URL,required"`
//	}
//	cfg, err := config.Load[Postgres]()
func Load[T any]() (T, error) {
	key := reflect.TypeFor[T]()

	mu.Lock()
	e, ok := cache[key]
	if !ok {
		e = &entry{}
		cache[key] = e
	}
	mu.Unlock()

	e.once.Do(func() {
		v, err := env.ParseAs[T]()
		if err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = v
	})

	if e.err != nil {
		var zero T
		return zero, e.err
	}
	return e.value.(T), nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any]() T {
	v, err := Load[T]()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return v
}

// ResetCache forgets every loaded type. Intended for tests.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[reflect.Type]*entry{}
}
