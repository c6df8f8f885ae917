package coverletter

// Built-in template keys.
const (
	FullStack   = "fullStack"
	DataScience = "dataScience"
)

var builtin = map[string]string{
	FullStack: `Dear Hiring Manager,

I am writing to apply for the [Position] internship at your organization. I am a Computer Science undergraduate at [University] with a solid grounding in web development and a habit of shipping complete projects end to end.

Technical skills:
• Frontend: React.js, HTML5, CSS3, modern JavaScript, Material-UI
• Backend: Node.js, Express.js, RESTful APIs, GraphQL
• Databases: MongoDB, MySQL, Redis
• Tooling: Git, Docker, AWS, CI/CD pipelines

Recent projects:
1. A blogging platform with real-time updates over WebSocket and media storage on S3
2. A recipe app with JWT authentication and compressed image uploads
3. A collaborative notes editor with rich text editing and cloud sync

I would welcome the chance to bring these skills to your team and to keep learning from experienced engineers.

Thank you for your time and consideration.

Best regards,
[Your Name]`,

	DataScience: `Dear Hiring Manager,

I am writing to apply for the [Position] internship. I am a Computer Science student at [University] with hands-on experience in data analysis and machine learning, and I enjoy turning raw data into decisions.

Technical skills:
• Programming: Python, R, SQL
• Analysis: Pandas, NumPy, SciPy
• Machine learning: scikit-learn, TensorFlow, PyTorch
• Visualization: Matplotlib, Seaborn, Tableau
• Big data: Hadoop, Spark

I am eager to apply these skills to real problems and contribute to your data initiatives.

Best regards,
[Your Name]`,
}
