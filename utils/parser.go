package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/tipsplit/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(currencyStructLevel, types.Currency{})
}

// erc20 currencies must point at a contract.
func currencyStructLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(types.Currency)
	if c.Standard == types.TokenStandardERC20 && (c.Address == "" || strings.EqualFold(c.Address, types.NativeAssetAddress)) {
		sl.ReportError(c.Address, "Address", "address", "erc20_contract", "")
	}
}

// ValidateStruct runs tag validation on v and flattens the failures into one
// readable error.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("%s %q is not a valid address", fe.Field(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "erc20_contract":
		return fmt.Sprintf("%s requires a token contract address", fe.Namespace())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// ParseConfig parses a session Config from JSON. Missing fields take their defaults.
func ParseConfig(data []byte) (*types.Config, error) {
	var config types.Config

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, types.NewPaymentError(types.ErrConfigError, "failed to parse config: %v", err)
	}

	config = config.WithDefaults()
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ValidateConfig checks tags and the currency list of an already-defaulted Config.
func ValidateConfig(config *types.Config) error {
	if err := ValidateStruct(config); err != nil {
		return types.NewPaymentError(types.ErrConfigError, "validation failed: %v", err)
	}
	if err := ValidateNetwork(string(config.Network)); err != nil {
		return types.NewPaymentError(types.ErrConfigError, "%v", err)
	}
	return types.ValidateCurrencies(config.Currencies)
}
