package api

import (
	"fmt"
	"sync"

	"SocialScheduler/internal/utils/timeutil"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 注册自定义 binding 标签：timeofday（"HH:MM"）
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("binding validator is not go-playground/validator")
			return
		}
		err = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
			_, perr := timeutil.ParseTimeOfDay(fl.Field().String())
			return perr == nil
		})
	})
	return err
}
