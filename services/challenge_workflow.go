package services

import (
	"fmt"

	"github.com/phillip/haojiu-go/models"
)

// Allowed treasure point moves. locked and completed never reach each
// other directly.
var pointTransitions = map[models.PointStatus][]models.PointStatus{
	models.PointLocked:  {models.PointPending},
	models.PointPending: {models.PointCompleted, models.PointLocked},
}

func canTransition(from, to models.PointStatus) bool {
	for _, s := range pointTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(p *models.TreasurePoint, to models.PointStatus) error {
	if !canTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	return nil
}

// MergeTeam adds members not already on team, keyed by id. Duplicates
// inside members are added once.
func MergeTeam(team []models.TeamMember, members ...models.TeamMember) (merged, added []models.TeamMember) {
	seen := make(map[string]bool, len(team)+len(members))
	merged = make([]models.TeamMember, 0, len(team)+len(members))
	for _, m := range team {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range members {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged = append(merged, m)
		added = append(added, m)
	}
	return merged, added
}

// CheckSubmission reports whether actorID may submit pointID right now
// without touching ch.
func CheckSubmission(ch *models.Challenge, pointID, actorID string) error {
	if actorID == ch.CreatorID || !ch.HasMember(actorID) {
		return fmt.Errorf("%w: only non-host team members can submit", ErrForbidden)
	}
	p := ch.Point(pointID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPointNotFound, pointID)
	}
	if !canTransition(p.Status, models.PointPending) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, models.PointPending)
	}
	return nil
}

// ApplySubmission moves a locked point to pending. Only team members who
// are not the host may submit.
func ApplySubmission(ch *models.Challenge, pointID, actorID string, sub models.Submission) error {
	if err := CheckSubmission(ch, pointID, actorID); err != nil {
		return err
	}
	if sub.PhotoURL == "" {
		return validation("photo_url is required")
	}
	p := ch.Point(pointID)
	if err := transition(p, models.PointPending); err != nil {
		return err
	}
	sub.SubmittedBy = actorID
	p.Submission = &sub
	return nil
}

// ApplyReview settles a pending point. Approval keeps the submission;
// rejection clears it and locks the point again.
func ApplyReview(ch *models.Challenge, pointID, actorID string, approve bool) error {
	if actorID != ch.CreatorID {
		return fmt.Errorf("%w: only the host can review", ErrForbidden)
	}
	p := ch.Point(pointID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPointNotFound, pointID)
	}
	if p.Status != models.PointPending {
		return fmt.Errorf("%w: point is %s", ErrInvalidTransition, p.Status)
	}

	if approve {
		return transition(p, models.PointCompleted)
	}
	if err := transition(p, models.PointLocked); err != nil {
		return err
	}
	p.Submission = nil
	return nil
}

func ChallengeProgress(ch *models.Challenge) models.Progress {
	pr := models.Progress{Total: len(ch.TreasurePoints)}
	for _, p := range ch.TreasurePoints {
		switch p.Status {
		case models.PointCompleted:
			pr.Completed++
		case models.PointPending:
			pr.Pending++
		}
	}
	return pr
}
