package integration

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"sams/pkg/types"
)

type createdSession struct {
	SessionID   int64  `json:"sessionId"`
	SessionCode string `json:"sessionCode"`
}

func openSession(t *testing.T, c *Classroom) createdSession {
	t.Helper()
	var created createdSession
	status, err := c.Do(http.MethodPost, "/api/session/create", c.LecturerToken, c.SessionRequest(5), &created)
	if err != nil || status != http.StatusCreated {
		t.Fatalf("CreateSession: status=%d err=%v", status, err)
	}
	return created
}

func TestClassroom_ConcurrentCheckInsReachLecturer(t *testing.T) {
	const students = 30
	c := StartClassroom(t, students)
	session := openSession(t, c)

	lecturer := c.ConnectLecturer(t, c.LecturerToken)
	if err := lecturer.Send("subscribe", session.SessionCode); err != nil {
		t.Fatal(err)
	}
	if _, err := lecturer.Next(types.EventSubscribed, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	statuses := make([]int, students)
	for i, token := range c.StudentTokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			status, err := c.Do(http.MethodPost, "/api/attendance/check-in", token,
				map[string]string{"sessionCode": session.SessionCode}, nil)
			if err != nil {
				t.Errorf("check-in %d: %v", i, err)
			}
			statuses[i] = status
		}(i, token)
	}
	wg.Wait()

	for i, status := range statuses {
		if status != http.StatusOK {
			t.Errorf("Student %d got status %d", i, status)
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < students; i++ {
		event, err := lecturer.Next(types.EventNewCheckIn, 5*time.Second)
		if err != nil {
			t.Fatalf("After %d pushes: %v", i, err)
		}
		payload, _ := event.Payload.(map[string]interface{})
		seen[fmt.Sprint(payload["studentName"])] = true
	}
	for _, name := range c.StudentNames {
		if !seen[name] {
			t.Errorf("No push for %s", name)
		}
	}

	var list []types.CheckedInStudent
	if status, err := c.Do(http.MethodGet, "/api/session/checked-in-students/"+session.SessionCode, c.LecturerToken, nil, &list); err != nil || status != http.StatusOK {
		t.Fatalf("ListCheckedIn: status=%d err=%v", status, err)
	}
	if len(list) != students {
		t.Errorf("Expected %d checked-in students, got %d", students, len(list))
	}
	if !sort.SliceIsSorted(list, func(i, j int) bool { return list[i].CheckInTime.Before(list[j].CheckInTime) }) {
		t.Error("Checked-in list should be in check-in order")
	}
}

func TestClassroom_DuplicateCheckInRace(t *testing.T) {
	c := StartClassroom(t, 1)
	session := openSession(t, c)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := c.Do(http.MethodPost, "/api/attendance/check-in", c.StudentTokens[0],
				map[string]string{"sessionCode": session.SessionCode}, nil)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			counts[status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != attempts-1 {
		t.Errorf("Expected one success and %d conflicts, got %v", attempts-1, counts)
	}

	var list []types.CheckedInStudent
	if _, err := c.Do(http.MethodGet, "/api/session/checked-in-students/"+session.SessionCode, c.StudentTokens[0], nil, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("Expected exactly one attendance, got %d", len(list))
	}
}

func TestClassroom_ForeignLecturerCannotWatch(t *testing.T) {
	c := StartClassroom(t, 1)
	session := openSession(t, c)

	other := c.ConnectLecturer(t, c.OtherLecturerToken)
	if err := other.Send("subscribe", session.SessionCode); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Next(types.EventError, 2*time.Second); err != nil {
		t.Fatalf("Expected Error frame: %v", err)
	}

	if status, _ := c.Do(http.MethodPost, "/api/attendance/check-in", c.StudentTokens[0],
		map[string]string{"sessionCode": session.SessionCode}, nil); status != http.StatusOK {
		t.Fatalf("Check-in failed with %d", status)
	}
	if _, err := other.Next(types.EventNewCheckIn, 300*time.Millisecond); err == nil {
		t.Error("Foreign lecturer must not receive pushes")
	}
}

func TestClassroom_EndSessionClosesCheckIn(t *testing.T) {
	c := StartClassroom(t, 2)
	session := openSession(t, c)

	lecturer := c.ConnectLecturer(t, c.LecturerToken)
	if err := lecturer.Send("subscribe", session.SessionCode); err != nil {
		t.Fatal(err)
	}
	if _, err := lecturer.Next(types.EventSubscribed, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	if status, _ := c.Do(http.MethodPost, "/api/attendance/check-in", c.StudentTokens[0],
		map[string]string{"sessionCode": session.SessionCode}, nil); status != http.StatusOK {
		t.Fatalf("Check-in failed with %d", status)
	}

	path := fmt.Sprintf("/api/session/end/%d", session.SessionID)
	if status, err := c.Do(http.MethodPost, path, c.LecturerToken, nil, nil); err != nil || status != http.StatusOK {
		t.Fatalf("EndSession: status=%d err=%v", status, err)
	}
	if _, err := lecturer.Next(types.EventSessionEnded, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	// Ending twice reports the session as gone
	if status, _ := c.Do(http.MethodPost, path, c.LecturerToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 on second end, got %d", status)
	}
	if status, _ := c.Do(http.MethodPost, "/api/attendance/check-in", c.StudentTokens[1],
		map[string]string{"sessionCode": session.SessionCode}, nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 after end, got %d", status)
	}
	if status, _ := c.Do(http.MethodGet, "/api/session/checked-in-students/"+session.SessionCode, c.LecturerToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for ended session list, got %d", status)
	}
}
