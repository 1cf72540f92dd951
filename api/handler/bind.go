package handler

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/esg-insight/api/middleware"
	"github.com/go-playground/validator/v10"
)

// bindError 把绑定错误转换为验证错误，逐个字段给出原因
func bindError(message string, err error) middleware.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return middleware.NewValidationError(message, err.Error())
	}

	details := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			details[i] = fmt.Sprintf("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param())
		} else {
			details[i] = fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		}
	}
	return middleware.NewValidationError(message, details...)
}
