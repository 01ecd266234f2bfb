package utils

import "github.com/gofiber/fiber/v2"

// Every endpoint answers with the same envelope: {success, message?, user?}.

func ResponseError(ctx *fiber.Ctx, status int, msg string) error {
	return ctx.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

func ResponseSuccess(ctx *fiber.Ctx, status int, msg string, user interface{}) error {
	body := fiber.Map{"success": true}
	if msg != "" {
		body["message"] = msg
	}
	if user != nil {
		body["user"] = user
	}
	return ctx.Status(status).JSON(body)
}
