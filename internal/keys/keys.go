// Package keys builds the store key namespace. Every key has the form
// <class>:<entity>:<id>:<kind>, or <class>:<kind> for global keys.
package keys

import "fmt"

// Keys builds keys under a class-name prefix.
type Keys struct {
	ClassName string
}

// New returns a key builder for className.
func New(className string) Keys {
	return Keys{ClassName: className}
}

func (k Keys) user(id, kind string) string {
	return fmt.Sprintf("%s:user:%s:%s", k.ClassName, id, kind)
}

func (k Keys) item(id, kind string) string {
	return fmt.Sprintf("%s:item:%s:%s", k.ClassName, id, kind)
}

func (k Keys) global(kind string) string {
	return k.ClassName + ":" + kind
}

// UserLikedAffixes returns the text around the user id in UserLikedSet, for
// scripts that build the key server-side.
func (k Keys) UserLikedAffixes() (prefix, suffix string) {
	return k.ClassName + ":user:", ":liked"
}

// UserDislikedAffixes is UserLikedAffixes for UserDislikedSet.
func (k Keys) UserDislikedAffixes() (prefix, suffix string) {
	return k.ClassName + ":user:", ":disliked"
}

// UserLikedSet holds the items a user liked.
func (k Keys) UserLikedSet(user string) string { return k.user(user, "liked") }

// UserDislikedSet holds the items a user disliked.
func (k Keys) UserDislikedSet(user string) string { return k.user(user, "disliked") }

// UserPassedSet holds the items a user skipped without rating.
func (k Keys) UserPassedSet(user string) string { return k.user(user, "passed") }

// ItemLikedBySet holds the users who liked an item.
func (k Keys) ItemLikedBySet(item string) string { return k.item(item, "liked") }

// ItemDislikedBySet holds the users who disliked an item.
func (k Keys) ItemDislikedBySet(item string) string { return k.item(item, "disliked") }

// SimilarityZSet is the user's similarity row: other user -> [-1, 1].
func (k Keys) SimilarityZSet(user string) string { return k.user(user, "similarity") }

// RecommendedZSet is the user's recommendation set: item -> prediction.
func (k Keys) RecommendedZSet(user string) string { return k.user(user, "recommendedSet") }

// TempAllLikedSet is the scratch candidate pool of the recommendation builder.
func (k Keys) TempAllLikedSet(user string) string { return k.user(user, "tempAllLikedSet") }

// UserIntersectionZSet is the retrieval scratch set of recommendations that are
// still active.
func (k Keys) UserIntersectionZSet(user string) string { return k.user(user, "intersection") }

// UserFilteredActiveZSet is the retrieval scratch set of active items the user
// has not rated or passed.
func (k Keys) UserFilteredActiveZSet(user string) string { return k.user(user, "filteredActive") }

func (k Keys) ScoreboardZSet() string  { return k.global("scoreboard") }
func (k Keys) ActiveItemsZSet() string { return k.global("activeItems") }
func (k Keys) ViewDebtSet() string     { return k.global("viewDebt") }
func (k Keys) MostLiked() string       { return k.global("mostLiked") }
func (k Keys) MostDisliked() string    { return k.global("mostDisliked") }
