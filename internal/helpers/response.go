package helpers

import "github.com/joshua-takyi/reviewtrust/internal/models"

func SuccessResponse(data interface{}, message string) models.ApiResponse {
	return models.ApiResponse{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func ErrorResponse(err string) models.ApiResponse {
	return models.ApiResponse{
		Success: false,
		Error:   err,
	}
}

// CodedErrorResponse carries a machine readable code next to the message.
func CodedErrorResponse(code, err string) models.ApiResponse {
	return models.ApiResponse{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

func PaginatedResponse(data interface{}, page, limit, total int) models.ApiResponse {
	return models.ApiResponse{
		Success: true,
		Data:    data,
		Page:    page,
		Limit:   limit,
		Total:   total,
	}
}
