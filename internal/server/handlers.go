package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/models"
	gardenslack "github.com/prite36/irrigation-remote/internal/slack"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
}

// CommandRequest is the optional body of the plant command endpoints. The
// plant name defaults to the last name the engine saw for the plant.
type CommandRequest struct {
	PlantName string  `json:"plantName"`
	Minutes   float64 `json:"minutes"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrPlantNameRequired), errors.Is(err, engine.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrRequestInFlight), errors.Is(err, engine.ErrValveBlocked), errors.Is(err, engine.ErrNotBlocked):
		return http.StatusConflict
	case errors.Is(err, engine.ErrChannelDisconnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func pathPlantID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid plant id %q", r.PathValue("id"))
	}
	return id, nil
}

func decodeCommand(r *http.Request) (CommandRequest, error) {
	var req CommandRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("error parsing request body: %w", err)
	}
	return req, nil
}

// commandTarget resolves the plant addressed by a command request.
func commandTarget(ctl Controller, w http.ResponseWriter, r *http.Request) (models.Plant, CommandRequest, bool) {
	id, err := pathPlantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return models.Plant{}, CommandRequest{}, false
	}
	req, err := decodeCommand(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return models.Plant{}, CommandRequest{}, false
	}
	name := req.PlantName
	if name == "" {
		name = ctl.PlantName(id)
	}
	return models.Plant{ID: id, Name: name}, req, true
}

func accepted(ctl Controller, w http.ResponseWriter, id int64) {
	writeJSON(w, http.StatusAccepted, engine.PlantWatering{PlantID: id, State: ctl.GetPlantWateringState(id)})
}

func PlantStateHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathPlantID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, engine.PlantWatering{PlantID: id, State: ctl.GetPlantWateringState(id)})
	}
}

func WateringHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plants := ctl.GetWateringPlants()
		if plants == nil {
			plants = []engine.PlantWatering{}
		}
		writeJSON(w, http.StatusOK, plants)
	}
}

func ManualHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plant, req, ok := commandTarget(ctl, w, r)
		if !ok {
			return
		}
		log.Printf("[INFO] API request: manual watering of plant %d for %.1f min", plant.ID, req.Minutes)
		if err := ctl.StartManual(plant, req.Minutes); err != nil {
			writeError(w, err)
			return
		}
		accepted(ctl, w, plant.ID)
	}
}

func SmartHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plant, _, ok := commandTarget(ctl, w, r)
		if !ok {
			return
		}
		log.Printf("[INFO] API request: smart watering of plant %d", plant.ID)
		if err := ctl.StartSmart(plant); err != nil {
			writeError(w, err)
			return
		}
		accepted(ctl, w, plant.ID)
	}
}

func StopHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathPlantID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		log.Printf("[INFO] API request: stop plant %d", id)
		if err := ctl.Stop(id); err != nil {
			writeError(w, err)
			return
		}
		accepted(ctl, w, id)
	}
}

func RestartHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plant, _, ok := commandTarget(ctl, w, r)
		if !ok {
			return
		}
		log.Printf("[INFO] API request: restart valve of plant %d", plant.ID)
		if err := ctl.RestartValve(plant); err != nil {
			writeError(w, err)
			return
		}
		accepted(ctl, w, plant.ID)
	}
}

// verifySlackRequest checks the request signature and returns the body,
// which stays readable on r.
func verifySlackRequest(r *http.Request, signingSecret string) ([]byte, int, error) {
	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return nil, http.StatusUnauthorized, fmt.Errorf("failed to create secrets verifier: %w", err)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if _, err := verifier.Write(body); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to write body to verifier: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid Slack signature: %w", err)
	}
	return body, http.StatusOK, nil
}

// SlackCommandHandler serves the /garden slash command.
func SlackCommandHandler(cfg *config.Config, ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, status, err := verifySlackRequest(r, cfg.Slack.SigningSecret); err != nil {
			log.Printf("[WARN] Rejected Slack command: %v", err)
			w.WriteHeader(status)
			return
		}

		s, err := slack.SlashCommandParse(r)
		if err != nil {
			log.Printf("[ERROR] Failed to parse slash command: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		log.Printf("[INFO] Slash command from %s: %s %s", s.UserName, s.Command, s.Text)

		writeJSON(w, http.StatusOK, &slack.Msg{
			ResponseType: "ephemeral",
			Text:         runSlashCommand(ctl, s.Text),
		})
	}
}

func runSlashCommand(ctl Controller, text string) string {
	cmd, err := gardenslack.ParseCommand(text)
	if err != nil {
		return err.Error() + "\n" + gardenslack.Usage
	}
	plant := models.Plant{ID: cmd.PlantID, Name: ctl.PlantName(cmd.PlantID)}

	switch cmd.Action {
	case gardenslack.ActionStatus:
		return gardenslack.FormatStatus(ctl.GetWateringPlants())
	case gardenslack.ActionStop:
		err = ctl.Stop(cmd.PlantID)
	case gardenslack.ActionManual:
		err = ctl.StartManual(plant, cmd.Minutes)
	case gardenslack.ActionSmart:
		err = ctl.StartSmart(plant)
	case gardenslack.ActionRestart:
		err = ctl.RestartValve(plant)
	}
	if err != nil {
		return fmt.Sprintf(":x: %s failed: %v", cmd.Action, err)
	}
	return fmt.Sprintf(":ok_hand: %s requested for plant %d", cmd.Action, cmd.PlantID)
}

// SlackEventsHandler answers URL verification and replies to app mentions
// with the current watering status.
func SlackEventsHandler(cfg *config.Config, ctl Controller, msg Messenger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, status, err := verifySlackRequest(r, cfg.Slack.SigningSecret)
		if err != nil {
			log.Printf("[WARN] Rejected Slack event: %v", err)
			w.WriteHeader(status)
			return
		}

		eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			log.Printf("[ERROR] Failed to parse Slack event: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch eventsAPIEvent.Type {
		case slackevents.URLVerification:
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(challenge.Challenge))
			log.Printf("[INFO] Responded to Slack URL verification challenge.")

		case slackevents.CallbackEvent:
			if _, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok && msg != nil {
				go msg.SendMessage(gardenslack.FormatStatus(ctl.GetWateringPlants()))
			} else {
				log.Printf("[INFO] Received a callback event: %v", eventsAPIEvent.InnerEvent.Type)
			}
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}
