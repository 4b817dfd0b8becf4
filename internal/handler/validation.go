package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/hitoshi/clkk/internal/model"
	"github.com/mcnijman/go-emailaddress"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 16

// requestValidator はリクエストボディを検証し、利用者向けの英語メッセージに変換する。
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() *requestValidator {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはGoのフィールド名ではなくフォームのラベルを使う
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(fmt.Sprintf("failed to register validator translations: %v", err))
	}

	return &requestValidator{validate: v, trans: trans}
}

// Struct は構造体を検証する。最初の違反を model.InputError として返す。
func (rv *requestValidator) Struct(s any) error {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return model.NewInputError(verrs[0].Translate(rv.trans) + ".")
	}
	return fmt.Errorf("failed to validate request: %w", err)
}

// normalizeEmail はメールアドレスの構文を検証し、前後の空白を除いた値を返す。
func normalizeEmail(raw string) (string, error) {
	addr, err := emailaddress.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", model.NewInputError("Please enter a valid email address.")
	}
	return addr.String(), nil
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.NewInputError("The request body is not valid JSON.")
	}
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
