package i18n

import (
	"encoding/json"
	"path/filepath"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"VoyagerGuard/pkg/logger"

	"go.uber.org/zap"
)

// I18nSupport API 状态文案的国际化。告警报文本身不走翻译，保持逐字节确定
type I18nSupport struct {
	bundle *i18n.Bundle
}

// NewI18nSupport 从 localesDir 加载 en/zh 语言文件，缺文件只告警不报错
func NewI18nSupport(defaultLang, localesDir string) (*I18nSupport, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, name := range []string{"en.json", "zh.json"} {
		path := filepath.Join(localesDir, name)
		if _, err := bundle.LoadMessageFile(path); err != nil {
			logger.Warn("i18n: locale file not loaded", zap.String("path", path), zap.Error(err))
		}
	}
	return &I18nSupport{bundle: bundle}, nil
}

// T 按语言取文案，找不到返回键名
func (i *I18nSupport) T(lang, key string, data map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, lang)
	translation, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		return key
	}
	return translation
}
