package public

import (
	"errors"

	"github.com/promo-next/internal/http/response"
	"github.com/promo-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.target.Error(), nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var claimCommonErrorRules = []mappedHandlerError{
	{target: service.ErrCouponNotFound, code: response.CodeNotFound},
	{target: service.ErrCouponNotIssuing, code: response.CodeBadRequest},
	{target: service.ErrCouponStockExhausted, code: response.CodeBadRequest},
	{target: service.ErrCouponUserLimit, code: response.CodeBadRequest},
	{target: service.ErrTooManyRequests, code: response.CodeTooManyRequests},
}

var exchangeExtraErrorRules = []mappedHandlerError{
	{target: service.ErrCodeInvalid, code: response.CodeBadRequest},
	{target: service.ErrCodeNotFound, code: response.CodeNotFound},
	{target: service.ErrCodeExpired, code: response.CodeBadRequest},
	{target: service.ErrCodeAlreadyRedeemed, code: response.CodeBadRequest},
}

var solutionErrorRules = []mappedHandlerError{
	{target: service.ErrSolutionIneligible, code: response.CodeBadRequest},
	{target: service.ErrUserCouponNotFound, code: response.CodeBadRequest},
	{target: service.ErrUserCouponNotUsable, code: response.CodeBadRequest},
}

func respondReceiveCouponError(c *gin.Context, err error) {
	respondWithMappedError(c, err, claimCommonErrorRules, response.CodeInternal, "领取优惠券失败")
}

func respondExchangeCouponError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(claimCommonErrorRules, exchangeExtraErrorRules), response.CodeInternal, "兑换优惠券失败")
}

func respondSolutionError(c *gin.Context, err error) {
	respondWithMappedError(c, err, solutionErrorRules, response.CodeInternal, "计算优惠方案失败")
}
