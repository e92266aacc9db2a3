// handlers/waiver_routes.go
package handlers

import (
	"strconv"

	"league-waiver-system/middleware"
	"league-waiver-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupWaiverRoutes registers the waiver surface. All routes require user
// context forwarded by the gateway (X-User-ID).
func SetupWaiverRoutes(app *fiber.App, waiverService *services.WaiverService) {
	secured := app.Group("/leagues/:leagueId/waivers", middleware.UserContextMiddleware())

	secured.Post("/claims", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		var req services.SubmitClaimRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		req.IdempotencyKey = c.Get("X-Idempotency-Key")

		claim, err := waiverService.SubmitClaim(c.Context(), leagueID, userID, req)
		if err != nil {
			return serviceError(c, err, "failed to submit claim")
		}
		return c.Status(fiber.StatusCreated).JSON(claim)
	})

	secured.Get("/claims", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		claims, err := waiverService.GetMyClaims(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to list claims")
		}
		return c.JSON(fiber.Map{"claims": claims})
	})

	secured.Get("/claims/league", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		claims, err := waiverService.GetLeagueClaims(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to list league claims")
		}
		return c.JSON(fiber.Map{"claims": claims})
	})

	secured.Get("/claims/:claimId", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		claimID, err := int64Param(c, "claimId")
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		claim, err := waiverService.GetClaim(c.Context(), leagueID, claimID, userID)
		if err != nil {
			return serviceError(c, err, "failed to get claim")
		}
		return c.JSON(claim)
	})

	secured.Post("/claims/reorder", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		var req struct {
			ClaimIDs []int64 `json:"claim_ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		claims, err := waiverService.ReorderClaims(c.Context(), leagueID, userID, req.ClaimIDs)
		if err != nil {
			return serviceError(c, err, "failed to reorder claims")
		}
		return c.JSON(fiber.Map{"claims": claims})
	})

	secured.Put("/claims/:claimId", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		claimID, err := int64Param(c, "claimId")
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		var req services.UpdateClaimRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		claim, err := waiverService.UpdateClaim(c.Context(), leagueID, claimID, userID, req)
		if err != nil {
			return serviceError(c, err, "failed to update claim")
		}
		return c.JSON(claim)
	})

	secured.Delete("/claims/:claimId", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		claimID, err := int64Param(c, "claimId")
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		if err := waiverService.CancelClaim(c.Context(), leagueID, claimID, userID); err != nil {
			return serviceError(c, err, "failed to cancel claim")
		}
		return c.JSON(fiber.Map{"message": "claim cancelled"})
	})

	secured.Get("/priority", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		priorities, err := waiverService.GetPriorities(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to get waiver priority")
		}
		return c.JSON(fiber.Map{"priorities": priorities})
	})

	secured.Get("/faab", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		budgets, err := waiverService.GetBudgets(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to get FAAB budgets")
		}
		return c.JSON(fiber.Map{"budgets": budgets})
	})

	secured.Get("/wire", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		entries, err := waiverService.GetWire(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to get waiver wire")
		}
		return c.JSON(fiber.Map{"players": entries})
	})

	secured.Post("/initialize", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		if err := waiverService.InitializeLeague(c.Context(), leagueID, userID); err != nil {
			return serviceError(c, err, "failed to initialize waivers")
		}
		return c.JSON(fiber.Map{"message": "waiver state initialized"})
	})

	secured.Post("/process", func(c *fiber.Ctx) error {
		leagueID, err := leagueParam(c)
		if err != nil {
			return err
		}
		userID := c.Locals("user_id").(string)

		result, err := waiverService.TriggerProcessing(c.Context(), leagueID, userID)
		if err != nil {
			return serviceError(c, err, "failed to process waivers")
		}
		return c.JSON(result)
	})
}

func leagueParam(c *fiber.Ctx) (int64, error) {
	return int64Param(c, "leagueId")
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// serviceError maps the service error kinds onto HTTP statuses. Anything
// unclassified is an internal error and keeps its cause out of the response.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	switch services.KindOf(err) {
	case services.KindValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case services.KindForbidden:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case services.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case services.KindConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
			"cause": err.Error(),
		})
	}
}
