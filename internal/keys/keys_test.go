package keys

import "testing"

func TestKeys(t *testing.T) {
	k := New("movie")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"liked", k.UserLikedSet("42"), "movie:user:42:liked"},
		{"disliked", k.UserDislikedSet("42"), "movie:user:42:disliked"},
		{"passed", k.UserPassedSet("42"), "movie:user:42:passed"},
		{"likedBy", k.ItemLikedBySet("7"), "movie:item:7:liked"},
		{"dislikedBy", k.ItemDislikedBySet("7"), "movie:item:7:disliked"},
		{"similarity", k.SimilarityZSet("42"), "movie:user:42:similarity"},
		{"recommended", k.RecommendedZSet("42"), "movie:user:42:recommendedSet"},
		{"scoreboard", k.ScoreboardZSet(), "movie:scoreboard"},
		{"active", k.ActiveItemsZSet(), "movie:activeItems"},
		{"viewDebt", k.ViewDebtSet(), "movie:viewDebt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestUserAndItemKeysDoNotCollide(t *testing.T) {
	k := New("item")
	if k.UserLikedSet("1") == k.ItemLikedBySet("1") {
		t.Fatal("user and item liked keys must differ for the same id")
	}
	seen := map[string]bool{}
	for _, key := range []string{
		k.UserLikedSet("1"), k.UserDislikedSet("1"), k.UserPassedSet("1"),
		k.SimilarityZSet("1"), k.RecommendedZSet("1"), k.TempAllLikedSet("1"),
		k.UserIntersectionZSet("1"), k.UserFilteredActiveZSet("1"),
	} {
		if seen[key] {
			t.Errorf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestUserAffixesRebuildKeys(t *testing.T) {
	k := New("movie")
	pre, suf := k.UserLikedAffixes()
	if got := pre + "42" + suf; got != k.UserLikedSet("42") {
		t.Errorf("liked affixes build %q, want %q", got, k.UserLikedSet("42"))
	}
	pre, suf = k.UserDislikedAffixes()
	if got := pre + "42" + suf; got != k.UserDislikedSet("42") {
		t.Errorf("disliked affixes build %q, want %q", got, k.UserDislikedSet("42"))
	}
}
