package devserver

import (
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuslink/campuslink/internal/models"
)

// seedPassword is the shared password of every seeded account.
const seedPassword = "campus123"

var seedStudents = []models.Student{
	{
		FirstName: "Priya", LastName: "Sharma",
		Username: "priyasharma", Email: "priya@campus.edu",
		Branch: "Computer Science", Year: "4th Year", State: "Maharashtra",
		Skills:    []string{"React", "Node.js", "TypeScript"},
		Interests: []string{"Web Development", "Gaming", "Photography"},
	},
	{
		FirstName: "Rahul", LastName: "Verma",
		Username: "rahulverma", Email: "rahul@campus.edu",
		Branch: "Electronics", Year: "2nd Year", State: "Uttar Pradesh",
		Skills:    []string{"Arduino", "Python", "PCB Design"},
		Interests: []string{"Circuit Design", "IoT", "Robotics"},
	},
	{
		FirstName: "Sarah", LastName: "Chen",
		Username: "sarahchen", Email: "sarah@campus.edu",
		Branch: "Computer Science", Year: "3rd Year", State: "Karnataka",
		Skills:    []string{"Python", "TensorFlow", "Data Analysis"},
		Interests: []string{"AI/ML", "Data Science", "Research"},
	},
	{
		FirstName: "Alex", LastName: "Kumar",
		Username: "alexkumar", Email: "alex@campus.edu",
		Branch: "Mechanical", Year: "3rd Year", State: "Tamil Nadu",
		Skills:    []string{"AutoCAD", "SolidWorks", "3D Modeling"},
		Interests: []string{"CAD Design", "3D Printing", "Automotive"},
	},
	{
		FirstName: "Ananya", LastName: "Patel",
		Username: "ananyapatel", Email: "ananya@campus.edu",
		Branch: "Computer Science", Year: "1st Year", State: "Gujarat",
		Skills:    []string{"JavaScript", "React"},
		Interests: []string{"Web Development", "Music", "Gaming"},
	},
}

// Seed registers a handful of verified accounts so the client has a roster
// to browse right after startup. Every account uses seedPassword.
func (s *Server) Seed() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seed := range seedStudents {
		student := seed
		student.ID = s.nextUserID
		s.nextUserID++
		s.students[student.ID] = &student
		s.credentials[student.Email] = credential{userID: student.ID, hash: hash}
	}
	s.log.Info("seeded roster",
		zap.Int("students", len(seedStudents)),
		zap.String("password", seedPassword))
	return nil
}
