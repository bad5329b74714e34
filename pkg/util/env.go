package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
)

// LoadEnv 按环境加载 .env 文件（.env.development / .env.production），已存在的环境变量优先
func LoadEnv(env string) error {
	candidates := []string{fmt.Sprintf(".env.%s", env), ".env"}
	var loaded bool
	for _, name := range candidates {
		f, err := os.Open(name)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.Trim(strings.TrimSpace(value), `"'`)
			if _, exists := os.LookupEnv(key); !exists {
				os.Setenv(key, value)
			}
		}
		f.Close()
		loaded = true
	}
	if !loaded {
		return fmt.Errorf("no env file found for %s", env)
	}
	return nil
}

func GetEnv(key string) string { return os.Getenv(key) }

func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 { return cast.ToInt64(os.Getenv(key)) }

func GetBoolEnv(key string) bool { return cast.ToBool(os.Getenv(key)) }

func GetDurationEnv(key string) (d int64, ok bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	return cast.ToInt64(v), true
}
