// Command seed populates a running API instance with directory fixtures:
// instructors, schedule slots, courses and students, plus optional initial
// enrollments. It drives the public HTTP surface so seeded state passes the
// same validation and capacity checks as live traffic.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type fixture struct {
	Instructors []instructor `json:"instructors"`
	Schedules   []schedule   `json:"schedules"`
	Courses     []course     `json:"courses"`
	Students    []student    `json:"students"`
	Enrollments []enrollment `json:"enrollments"`
}

type instructor struct {
	InstructorNo string `json:"instructor_no"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Department   string `json:"department"`
}

type schedule struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type course struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	Instructor int    `json:"instructor"`
	Schedule   int    `json:"schedule"`
	Capacity   int    `json:"capacity"`
}

type student struct {
	StudentNo string `json:"student_no"`
	FullName  string `json:"full_name"`
	Major     string `json:"major"`
	GradeYear int    `json:"grade_year"`
	Email     string `json:"email"`
}

type enrollment struct {
	Course  int `json:"course"`
	Student int `json:"student"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		base        string
		fixturePath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&fixturePath, "fixture", filepath.Join("scripts", "seed", "fixture.json"), "Path to JSON fixture file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	fx, err := loadFixture(fixturePath)
	if err != nil {
		log.Fatalf("failed to load fixture: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	api := strings.TrimRight(base, "/") + "/api/v1"

	instructorIDs := make([]string, 0, len(fx.Instructors))
	for _, ins := range fx.Instructors {
		id, err := create(client, api+"/instructors", ins)
		if err != nil {
			log.Fatalf("seed instructor %q: %v", ins.FullName, err)
		}
		instructorIDs = append(instructorIDs, id)
	}

	scheduleIDs := make([]string, 0, len(fx.Schedules))
	for _, slot := range fx.Schedules {
		id, err := create(client, api+"/schedules", slot)
		if err != nil {
			log.Fatalf("seed schedule %s %s: %v", slot.DayOfWeek, slot.StartTime, err)
		}
		scheduleIDs = append(scheduleIDs, id)
	}

	courseIDs := make([]string, 0, len(fx.Courses))
	for _, c := range fx.Courses {
		if c.Instructor < 0 || c.Instructor >= len(instructorIDs) {
			log.Fatalf("course %q references unknown instructor index %d", c.Code, c.Instructor)
		}
		if c.Schedule < 0 || c.Schedule >= len(scheduleIDs) {
			log.Fatalf("course %q references unknown schedule index %d", c.Code, c.Schedule)
		}
		payload := map[string]interface{}{
			"code":          c.Code,
			"title":         c.Title,
			"instructor_id": instructorIDs[c.Instructor],
			"schedule_id":   scheduleIDs[c.Schedule],
			"capacity":      c.Capacity,
		}
		id, err := create(client, api+"/courses", payload)
		if err != nil {
			log.Fatalf("seed course %q: %v", c.Code, err)
		}
		courseIDs = append(courseIDs, id)
	}

	studentIDs := make([]string, 0, len(fx.Students))
	for _, s := range fx.Students {
		id, err := create(client, api+"/students", s)
		if err != nil {
			log.Fatalf("seed student %q: %v", s.StudentNo, err)
		}
		studentIDs = append(studentIDs, id)
	}

	var admitted int
	for _, e := range fx.Enrollments {
		if e.Course < 0 || e.Course >= len(courseIDs) || e.Student < 0 || e.Student >= len(studentIDs) {
			log.Fatalf("enrollment references unknown course %d or student %d", e.Course, e.Student)
		}
		payload := map[string]string{
			"course_id":  courseIDs[e.Course],
			"student_id": studentIDs[e.Student],
		}
		if _, err := create(client, api+"/enrollments", payload); err != nil {
			log.Printf("enrollment course=%d student=%d rejected: %v", e.Course, e.Student, err)
			continue
		}
		admitted++
	}

	fmt.Printf("Seeded %d instructors, %d schedules, %d courses, %d students, %d enrollments\n",
		len(instructorIDs), len(scheduleIDs), len(courseIDs), len(studentIDs), admitted)
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	if len(fx.Courses) == 0 && len(fx.Students) == 0 {
		return nil, fmt.Errorf("no courses or students defined in %s", path)
	}
	return &fx, nil
}

func create(client *http.Client, url string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	var entity struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &entity); err != nil {
		return "", err
	}
	return entity.ID, nil
}
