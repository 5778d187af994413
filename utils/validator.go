package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/go-playground/validator/v10"
)

// 与前端表单一致的邮箱规则
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 返回注册了自定义规则的校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		registerValidators(v)
		validate = v
	})
	return validate
}

func registerValidators(v *validator.Validate) {
	_ = v.RegisterValidation("contactemail", ContactEmail)
	_ = v.RegisterValidation("businessline", BusinessLine)
	_ = v.RegisterValidation("isodate", ISODate)
	_ = v.RegisterValidation("opportunitystatus", OpportunityStatus)
	_ = v.RegisterValidation("contacttype", ContactType)
}

// ContactEmail 邮箱格式
func ContactEmail(fl validator.FieldLevel) bool {
	return emailRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

// BusinessLine 业务线必须属于封闭枚举
func BusinessLine(fl validator.FieldLevel) bool {
	_, ok := models.ParseBusinessLine(fl.Field().String())
	return ok
}

// ISODate 日期必须为 YYYY-MM-DD
func ISODate(fl validator.FieldLevel) bool {
	return models.IsISODate(fl.Field().String())
}

// OpportunityStatus 商机状态必须是推进序列或旧状态词汇之一
func OpportunityStatus(fl validator.FieldLevel) bool {
	return models.OpportunityStatus(fl.Field().String()).IsKnown()
}

// ContactType 联系方式必须是已知类型
func ContactType(fl validator.FieldLevel) bool {
	return models.ContactType(fl.Field().String()).IsValid()
}

var fieldMessages = map[string]string{
	"required":          "必填",
	"contactemail":      "邮箱格式不正确",
	"businessline":      "业务线无效",
	"isodate":           "日期格式应为 YYYY-MM-DD",
	"opportunitystatus": "状态无效",
	"contacttype":       "联系方式无效",
	"gte":               "不能为负数",
}

// ValidateStruct 校验结构体，失败时返回 *ValidationError
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err.Error(), nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fieldPath(fe.Namespace())
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "无效 (" + fe.Tag() + ")"
		}
		fields[key] = msg
	}
	return NewValidationError("", fields)
}

// fieldPath 去掉顶层结构体名，例如 Client.contacts[0].email -> contacts[0].email
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
