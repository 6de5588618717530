package models

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IndianStates lists the states and union territories accepted in a shipping address.
var IndianStates = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh", "Goa",
	"Gujarat", "Haryana", "Himachal Pradesh", "Jharkhand", "Karnataka", "Kerala",
	"Madhya Pradesh", "Maharashtra", "Manipur", "Meghalaya", "Mizoram", "Nagaland",
	"Odisha", "Punjab", "Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura",
	"Uttar Pradesh", "Uttarakhand", "West Bengal",
	"Andaman and Nicobar Islands", "Chandigarh", "Dadra and Nagar Haveli and Daman and Diu",
	"Delhi", "Jammu and Kashmir", "Ladakh", "Lakshadweep", "Puducherry",
}

var (
	indianMobileRe = regexp.MustCompile(`^[6-9]\d{9}$`)
	pincodeRe      = regexp.MustCompile(`^[1-9]\d{5}$`)
	stateSet       = func() map[string]bool {
		m := make(map[string]bool, len(IndianStates))
		for _, s := range IndianStates {
			m[s] = true
		}
		return m
	}()
)

// IsIndianMobile checks the 10-digit mobile pattern PhonePe requires.
func IsIndianMobile(phone string) bool {
	return indianMobileRe.MatchString(phone)
}

// NewValidator returns a validator with the address rules registered:
// indian_state and pincode. Field errors use json names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("indian_state", func(fl validator.FieldLevel) bool {
		return stateSet[fl.Field().String()]
	})
	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return pincodeRe.MatchString(fl.Field().String())
	})
	return v
}
