package middleware

import "github.com/gin-gonic/gin"

// Language 解析请求语言并放进上下文，handler 经由 i18n 取状态文案
func Language(defaultLang string) gin.HandlerFunc {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return func(c *gin.Context) {
		lang := c.DefaultQuery("lang", c.GetHeader("Accept-Language"))
		switch lang {
		case "en", "zh":
		default:
			lang = defaultLang
		}
		c.Set("lang", lang)
		c.Next()
	}
}
